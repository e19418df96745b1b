package logging

import (
	"context"

	"cloud.google.com/go/logging"

	"github.com/roamstake/staking-engine/common/config"
)

type stackdriverOutput struct {
	client *logging.Client
	logger *logging.Logger
}

// assertOutputInterface
func _() {
	var _ output = (*stackdriverOutput)(nil)
}

func newStackdriverOutput(logname string) (*stackdriverOutput, error) {
	ctx := context.Background()
	client, err := logging.NewClient(ctx, config.GetString("SERVER_PROJECT_ID"))
	if err != nil {
		return nil, err
	}
	// Check if connection is valid.
	if err = client.Ping(ctx); err != nil {
		return nil, err
	}
	return &stackdriverOutput{
		client: client,
		logger: client.Logger(logname),
	}, nil
}

func (o *stackdriverOutput) output(lv level, tag string, log string) {
	if o.logger == nil {
		return
	}
	o.logger.Log(logging.Entry{
		Severity: lv.Severity(),
		Labels:   map[string]string{"tag": tag},
		Payload:  removeColor(log),
	})
}

func (o *stackdriverOutput) flush() {
	_ = o.client.Close()
}
