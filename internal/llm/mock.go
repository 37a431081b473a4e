package llm

import (
	"context"
	"fmt"
	"strings"

	"docforge/internal/domain/pipeline"
)

// mockClient returns deterministic text without calling any service. It backs
// the "mock" provider used for local runs and end-to-end tests.
type mockClient struct{}

var _ Generator = mockClient{}

// NewMockClient returns the deterministic offline provider.
func NewMockClient() Generator {
	return mockClient{}
}

func (mockClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	subject := req.Unit
	if subject == "" {
		subject = "codebase"
	}
	switch req.Role {
	case pipeline.RoleDocumentation:
		return fmt.Sprintf("# %s\n\nDocumentation for %s (%d bytes of prompt).", subject, subject, len(req.Prompt)), nil
	case pipeline.RoleBoilerplate:
		return fmt.Sprintf("```java\n// Boilerplate for %s\npublic class %s {}\n```", subject, className(subject)), nil
	case pipeline.RoleTest:
		return fmt.Sprintf("```java\n// Tests for %s\npublic class %sTest {}\n```", subject, className(subject)), nil
	case pipeline.RoleArchitecture:
		return "# Architecture\n\nOverview of " + subject + ".", nil
	default:
		return "", fmt.Errorf("unsupported role %q", req.Role)
	}
}

func className(unit string) string {
	name := unit
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "Generated"
	}
	return name
}
