package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultManifestIsValid(t *testing.T) {
	t.Parallel()

	m := Default()
	require.NoError(t, m.Validate())
	require.Len(t, m.RequiredInputs(), 2)
	require.Equal(t, []string{"csv"}, m.SupportedFormats())

	a, ok := m.InputByName("file1.csv")
	require.True(t, ok)
	require.Equal(t, "file1", a.Key)

	_, ok = m.OutputByName("missing.bin")
	require.False(t, ok)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	doc := `
capabilities: [timeseries]
inputs:
  - key: data
    name: data.csv
    dtype: csv
    required: true
  - key: reference
    name: reference.json
    dtype: json
outputs:
  - key: report
    name: report.xlsx
    dtype: xlsx
    required: true
parameter_schema:
  type: object
  properties:
    window:
      type: string
      enum: [daily, weekly]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Inputs, 2)
	require.Equal(t, []string{"csv", "json"}, m.SupportedFormats())
	require.Len(t, m.RequiredInputs(), 1)
}

func TestLoadRejectsBadManifests(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cases := []struct {
		name string
		file string
		doc  string
	}{
		{"no inputs", "empty.yaml", "outputs:\n  - {key: o, name: o.csv}\n"},
		{"duplicate keys", "dup.yaml", "inputs:\n  - {key: a, name: a.csv}\n  - {key: a, name: b.csv}\n"},
		{"path separator in name", "path.yaml", "inputs:\n  - {key: a, name: ../a.csv}\n"},
		{"unsupported extension", "m.toml", "whatever"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(dir, tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.doc), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestParamValidator(t *testing.T) {
	t.Parallel()

	v, err := Default().Validator()
	require.NoError(t, err)

	params, err := v.Validate([]byte(`{"analysis_type":"delivery_time","region":"north"}`))
	require.NoError(t, err)
	require.Equal(t, "north", params["region"])

	_, err = v.Validate([]byte(`{"analysis_type":"guesswork"}`))
	require.Error(t, err)

	_, err = v.Validate([]byte(`["not","an","object"]`))
	require.Error(t, err)
}

func TestParamValidatorWithoutSchema(t *testing.T) {
	t.Parallel()

	m := Manifest{Inputs: []Artifact{{Key: "a", Name: "a.csv"}}}
	v, err := m.Validator()
	require.NoError(t, err)

	params, err := v.Validate([]byte(`{"anything":"goes"}`))
	require.NoError(t, err)
	require.Equal(t, "goes", params["anything"])
}
