package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/visxp-prep/internal/pipeline"
	"github.com/maauso/visxp-prep/internal/provenance"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "visxp-prep dev (dane-video-segmentation-worker)\n", out.String())
}

func TestRunCommand_RequiresInput(t *testing.T) {
	rootCmd.SetArgs([]string{"run"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.Error(t, rootCmd.Execute())
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	step := provenance.Step{ActivityName: "Generate input data for VisXP feature extraction"}
	require.NoError(t, printJSON(&out, runOutput{
		Result:     pipeline.Result{State: 404, Message: pipeline.MsgNoMediaFile},
		Provenance: &step,
	}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.EqualValues(t, 404, got["state"])
	assert.Equal(t, pipeline.MsgNoMediaFile, got["message"])
	assert.Contains(t, got, "provenance")

	out.Reset()
	require.NoError(t, printJSON(&out, runOutput{Result: pipeline.Result{State: 200}}))
	assert.NotContains(t, out.String(), "provenance")
}
