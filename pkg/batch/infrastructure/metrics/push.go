package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// PushJob is the Pushgateway job label every push is grouped under.
const PushJob = "communes_batch"

// PushGroupingLabel is the grouping key holding the job name. The recorded metrics already carry a
// job_name label, which the Pushgateway does not accept as a grouping key.
const PushGroupingLabel = "batch_job"

// Push sends the gathered metrics of gatherer to the Pushgateway at url, grouped by job name.
// The push replaces the previous metrics of the same group.
func Push(ctx context.Context, url, jobName string, gatherer prometheus.Gatherer) error {
	err := push.New(url, PushJob).
		Gatherer(gatherer).
		Grouping(PushGroupingLabel, jobName).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics of '%s' to %s: %w", jobName, url, err)
	}
	logger.Infof("Metrics of job '%s' pushed to %s.", jobName, url)
	return nil
}
