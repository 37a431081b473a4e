package bundle

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"docforge/internal/domain/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(unit string, kind pipeline.ArtifactKind, body string) pipeline.CodeArtifact {
	return pipeline.CodeArtifact{UnitName: unit, Kind: kind, Body: body, Status: pipeline.StatusOK}
}

func failed(unit string, kind pipeline.ArtifactKind, msg string) pipeline.CodeArtifact {
	return pipeline.CodeArtifact{UnitName: unit, Kind: kind, Status: pipeline.StatusFailed, Error: msg}
}

func TestAggregateAllSucceeded(t *testing.T) {
	records := pipeline.RecordSet{
		{UnitName: "A.java", Body: "a", Status: pipeline.StatusOK},
		{UnitName: "B.java", Body: "b", Status: pipeline.StatusOK},
		{UnitName: "C.java", Body: "c", Status: pipeline.StatusOK},
	}
	artifacts := []pipeline.CodeArtifact{
		ok("C.java", pipeline.KindTest, "t"),
		ok("A.java", pipeline.KindBoilerplate, "b"),
		ok("B.java", pipeline.KindTest, "t"),
		ok("C.java", pipeline.KindBoilerplate, "b"),
		ok("A.java", pipeline.KindTest, "t"),
		ok("B.java", pipeline.KindBoilerplate, "b"),
	}

	bundle := Aggregate(records, artifacts)
	require.Len(t, bundle.Artifacts, 6)
	assert.False(t, bundle.Partial)
	assert.Equal(t, pipeline.OutcomeSucceeded, bundle.Outcome())
	assert.Equal(t, 3, bundle.Count(pipeline.KindBoilerplate))
	assert.Equal(t, 3, bundle.Count(pipeline.KindTest))

	want := []struct {
		unit string
		kind pipeline.ArtifactKind
	}{
		{"A.java", pipeline.KindBoilerplate}, {"A.java", pipeline.KindTest},
		{"B.java", pipeline.KindBoilerplate}, {"B.java", pipeline.KindTest},
		{"C.java", pipeline.KindBoilerplate}, {"C.java", pipeline.KindTest},
	}
	for i, w := range want {
		assert.Equal(t, w.unit, bundle.Artifacts[i].UnitName)
		assert.Equal(t, w.kind, bundle.Artifacts[i].Kind)
	}

	// Input is not mutated.
	assert.Equal(t, "C.java", artifacts[0].UnitName)
}

func TestAggregatePartialFromFailedRecord(t *testing.T) {
	records := pipeline.RecordSet{
		{UnitName: "A.java", Body: "a", Status: pipeline.StatusOK},
		{UnitName: "B.java", Status: pipeline.StatusFailed, Error: "boom"},
	}
	// Even if the caller dropped the passthrough artifact, the failed record
	// still marks the bundle partial.
	bundle := Aggregate(records, []pipeline.CodeArtifact{ok("A.java", pipeline.KindBoilerplate, "b")})
	assert.True(t, bundle.Partial)
	assert.Equal(t, pipeline.OutcomePartial, bundle.Outcome())
}

func TestAggregatePartialFromFailedArtifact(t *testing.T) {
	records := pipeline.RecordSet{{UnitName: "A.java", Body: "a", Status: pipeline.StatusOK}}
	bundle := Aggregate(records, []pipeline.CodeArtifact{
		ok("A.java", pipeline.KindBoilerplate, "b"),
		failed("A.java", pipeline.KindTest, "timeout"),
	})
	assert.True(t, bundle.Partial)
}

func TestAggregateIsDeterministic(t *testing.T) {
	records := pipeline.RecordSet{
		{UnitName: "A.java", Body: "a", Status: pipeline.StatusOK},
		{UnitName: "B.java", Body: "b", Status: pipeline.StatusOK},
	}
	artifacts := []pipeline.CodeArtifact{
		ok("Z.java", pipeline.KindBoilerplate, "orphan"),
		ok("B.java", pipeline.KindBoilerplate, "b"),
		ok("A.java", pipeline.KindBoilerplate, "a"),
	}
	first := Aggregate(records, artifacts)
	second := Aggregate(records, artifacts)
	assert.Equal(t, first, second)
	assert.Equal(t, "Z.java", first.Artifacts[2].UnitName)
}

func TestExtractFiles(t *testing.T) {
	body := "Here you go:\n```java\n@RestController\npublic class UserController {}\n```\ntext\n```java\npublic interface UserService {}\n```\n```\n// no type here\n```"
	files := ExtractFiles(body, "User")
	require.Len(t, files, 3)
	assert.Equal(t, "UserController.java", files[0].Name)
	assert.Contains(t, files[0].Content, "@RestController")
	assert.Equal(t, "UserService.java", files[1].Name)
	assert.Equal(t, "File_2.java", files[2].Name)
}

func TestExtractFilesWithoutFences(t *testing.T) {
	files := ExtractFiles("public class Raw {}", "Raw")
	require.Len(t, files, 1)
	assert.Equal(t, "Raw.java", files[0].Name)
	assert.Nil(t, ExtractFiles("   ", "Empty"))
}

func TestWriteZip(t *testing.T) {
	bundle := pipeline.ResultBundle{
		Artifacts: []pipeline.CodeArtifact{
			ok("src/com/acme/User.java", pipeline.KindBoilerplate, "```java\npublic class UserController {}\n```\n```java\npublic class UserController {}\n```"),
			ok("src/com/acme/User.java", pipeline.KindTest, "```java\nclass UserControllerTest {}\n```"),
			failed("src/com/acme/Order.java", pipeline.KindBoilerplate, "documentation failed:\nupstream 500"),
		},
		Partial: true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteZip(&buf, bundle))

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, f := range reader.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		contents[f.Name] = string(data)
	}

	assert.Contains(t, contents, "boilerplate/src/com/acme/User/UserController.java")
	assert.Contains(t, contents, "boilerplate/src/com/acme/User/UserController_2.java")
	assert.Contains(t, contents, "tests/src/com/acme/User/UserControllerTest.java")
	assert.Equal(t, "src/com/acme/Order.java\tboilerplate\tdocumentation failed: upstream 500\n", contents[FailureReport])
}

func TestWriteZipOmitsFailureReportWhenClean(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteZip(&buf, pipeline.ResultBundle{Artifacts: []pipeline.CodeArtifact{
		ok("A.java", pipeline.KindBoilerplate, "```java\nclass A {}\n```"),
	}}))
	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, reader.File, 1)
	assert.Equal(t, "boilerplate/A/A.java", reader.File[0].Name)
}
