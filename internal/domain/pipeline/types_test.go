package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationRequestValidateOrder(t *testing.T) {
	req := GenerationRequest{}
	require.ErrorIs(t, req.Validate(), ErrInvalidCredential)

	req.Credential = "sk-test"
	require.ErrorIs(t, req.Validate(), ErrEmptyRecordSet)

	req.Records = RecordSet{{UnitName: "A.java", Status: StatusOK}}
	require.NoError(t, req.Validate())
}

func TestRecordSetValidateRejectsDuplicatesAndUnknownStatus(t *testing.T) {
	dup := RecordSet{
		{UnitName: "A.java", Status: StatusOK},
		{UnitName: "A.java", Status: StatusOK},
	}
	require.ErrorIs(t, dup.Validate(), ErrMalformedPayload)

	bad := RecordSet{{UnitName: "A.java", Status: "pending"}}
	require.ErrorIs(t, bad.Validate(), ErrMalformedPayload)

	unnamed := RecordSet{{Status: StatusOK}}
	require.ErrorIs(t, unnamed.Validate(), ErrMalformedPayload)
}

func TestResultBundleOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSucceeded, ResultBundle{}.Outcome())
	assert.Equal(t, OutcomePartial, ResultBundle{Partial: true}.Outcome())
}

func TestNewGenerationErrorKeepsExistingAndFillsUnit(t *testing.T) {
	base := errors.New("boom")
	err := NewGenerationError(RoleBoilerplate, "", base)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, RoleBoilerplate, genErr.Role)
	assert.Empty(t, genErr.Unit)

	err = NewGenerationError(RoleTest, "A.java", err)
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, RoleBoilerplate, genErr.Role)
	assert.Equal(t, "A.java", genErr.Unit)
	assert.ErrorIs(t, err, base)
	assert.Nil(t, NewGenerationError(RoleTest, "A.java", nil))
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(ErrCorruptArchive))
	assert.True(t, IsInputError(errors.Join(errors.New("x"), ErrEmptyRecordSet)))
	assert.False(t, IsInputError(ErrHandoffUnavailable))
	assert.False(t, IsInputError(&GenerationError{Role: RoleTest, Err: errors.New("x")}))
}
