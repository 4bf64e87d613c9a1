package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault(t *testing.T) {
	p, err := LoadDefault(LeavePlanSlug)
	require.NoError(t, err)
	require.Equal(t, LeavePlanSlug, p.Slug())
	require.NotEmpty(t, p.Config.SystemTemplate)
	require.Contains(t, p.Config.UserTemplate, "{{state}}")
	require.ElementsMatch(t, []string{"country", "state", "year"}, p.Config.Input.RequiredVariables)

	_, err = LoadDefault("missing")
	require.Error(t, err)
}

func TestRenderLeavePlan(t *testing.T) {
	p, err := Resolve("")
	require.NoError(t, err)

	system, user, err := p.Render(map[string]string{
		"country": "Australia",
		"state":   "Victoria",
		"year":    "2025",
	})
	require.NoError(t, err)

	assert.Equal(t, "What's the most efficient way to take annual leave in Victoria, Australia for the year 2025?", user)
	assert.Contains(t, system, "workers in Victoria, Australia for the year 2025")
	assert.Contains(t, system, "## Annual Leave Optimization for Victoria, Australia in 2025")
	assert.NotContains(t, system, "{{")
	assert.NotContains(t, system, "slug:")
}

func TestRenderIsSinglePass(t *testing.T) {
	p := &Prompt{Config: Config{
		Slug:           "t",
		SystemTemplate: "{{country}}/{{state}}",
		UserTemplate:   "{{year}}",
	}}

	system, user, err := p.Render(map[string]string{
		"country": "{{state}}",
		"state":   "Victoria",
		"year":    "",
	})
	require.NoError(t, err)
	assert.Equal(t, "{{state}}/Victoria", system)
	assert.Equal(t, "", user)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "empty", data: "  ", wantErr: "empty prompt"},
		{name: "missing slug", data: "---\nname: x\n---\nbody", wantErr: "slug is required"},
		{name: "missing body", data: "---\nslug: x\n---\n", wantErr: "system_template is required"},
		{name: "unterminated", data: "---\nslug: x\nbody", wantErr: "unterminated frontmatter"},
		{name: "unused variable", data: "---\nslug: x\ninput:\n  required_variables: [year]\n---\nno placeholders", wantErr: `"year"`},
		{name: "bad yaml", data: "---\nslug: [\n---\nbody", wantErr: "invalid frontmatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.name, []byte(tt.data))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPlainYAML(t *testing.T) {
	p, err := Load("plain.yaml", []byte("slug: plain\nsystem_template: hello {{country}}\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello {{country}}", p.Config.SystemTemplate)
}

func TestResolveFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nslug: custom\nuser_template: plan {{year}}\n---\nCustom for {{country}}\n"), 0o600))

	p, err := Resolve(path)
	require.NoError(t, err)
	require.Equal(t, "custom", p.Slug())

	system, user, err := p.Render(map[string]string{"country": "Canada", "year": "2026"})
	require.NoError(t, err)
	assert.Equal(t, "Custom for Canada", system)
	assert.Equal(t, "plan 2026", user)

	_, err = Resolve(filepath.Join(t.TempDir(), "nope.md"))
	require.Error(t, err)
}
