package tracing

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr int
	}{
		{name: "默认关闭", mutate: func(*Options) {}},
		{name: "开启默认值", mutate: func(o *Options) { o.Enabled = true }},
		{name: "缺少 endpoint", mutate: func(o *Options) { o.Enabled = true; o.Endpoint = "" }, wantErr: 1},
		{name: "stdout 不需要 endpoint", mutate: func(o *Options) { o.Enabled = true; o.ExporterType = ExporterStdout; o.Endpoint = "" }},
		{name: "未知 exporter", mutate: func(o *Options) { o.Enabled = true; o.ExporterType = "jaeger" }, wantErr: 1},
		{name: "采样比例越界", mutate: func(o *Options) { o.Enabled = true; o.SamplerType = SamplerRatio; o.SamplerRatio = 2 }, wantErr: 1},
		{name: "未知采样器", mutate: func(o *Options) { o.Enabled = true; o.SamplerType = "sometimes" }, wantErr: 1},
		{name: "非法超时", mutate: func(o *Options) { o.Enabled = true; o.BatchTimeout = 0; o.ExportTimeout = -1 }, wantErr: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			assert.Len(t, o.Validate(), tt.wantErr)
		})
	}
}

func TestOptions_AddFlags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--tracing.enabled",
		"--tracing.exporter-type=otlp_grpc",
		"--tracing.endpoint=collector:4317",
		"--tracing.headers=x-token=abc",
	}))
	assert.True(t, o.Enabled)
	assert.Equal(t, ExporterOTLPGRPC, o.ExporterType)
	assert.Equal(t, "collector:4317", o.Endpoint)
	assert.Equal(t, map[string]string{"x-token": "abc"}, o.Headers)

	o.Headers = nil
	require.NoError(t, o.Complete())
	assert.NotNil(t, o.Headers)
}
