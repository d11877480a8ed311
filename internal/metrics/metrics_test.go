package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRunsTotal(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("200"))
	RunsTotal.WithLabelValues("200").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("200")))
}

func TestStageDuration(t *testing.T) {
	StageDuration.WithLabelValues("shot_detection").Observe(1.5)
	assert.Equal(t, 1, testutil.CollectAndCount(StageDuration, "visxp_prep_stage_duration_seconds"))
}
