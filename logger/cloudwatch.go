package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type metricPublisher interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var (
	cwMu        sync.RWMutex
	cwClient    metricPublisher
	cwNamespace = "histflow"
)

// InitCloudWatch creates the CloudWatch client used by LogMetric. An empty
// region falls back to AWS_REGION. On failure a warning is logged and metric
// publishing stays disabled.
func InitCloudWatch(ctx context.Context, region, namespace, dashboard string) {
	log := GetLogger().WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}
	client := cloudwatch.NewFromConfig(cfg)

	cwMu.Lock()
	cwClient = client
	if namespace != "" {
		cwNamespace = namespace
	}
	cwMu.Unlock()

	log.WithFields(Fields{"region": region, "namespace": namespace}).Info("initialized CloudWatch client")

	if dashboard != "" {
		createDashboard(ctx, client, dashboard)
	}
}

func publishMetric(name string, value float64, dims map[string]string) {
	cwMu.RLock()
	client, ns := cwClient, cwNamespace
	cwMu.RUnlock()
	if client == nil {
		return
	}

	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dimensions := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dimensions = append(dimensions, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(dims[k])})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(ns),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: aws.String(name),
			Dimensions: dimensions,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(value),
		}},
	})
	if err != nil {
		GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metric")
	}
}

func createDashboard(ctx context.Context, client *cloudwatch.Client, name string) {
	cwMu.RLock()
	ns := cwNamespace
	cwMu.RUnlock()

	body := fmt.Sprintf(`{
"widgets": [{
"type": "metric",
"width": 24,
"height": 6,
"properties": {
"metrics": [
    ["%[1]s","requests_succeeded"],
    ["%[1]s","requests_failed"],
    ["%[1]s","requests_cached"],
    ["%[1]s","rows_written"]
],
"period": 300,
"stat": "Sum",
"title": "histflow fetch runs"
}
}]
}`, ns)

	if _, err := client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(name),
		DashboardBody: aws.String(body),
	}); err != nil {
		GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}
