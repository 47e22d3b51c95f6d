// 默认配置测试。
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/reason"
)

func TestDefaultRotationConfig(t *testing.T) {
	rot := DefaultRotationConfig()
	// 各层阈值递增,低层先滚动
	assert.Less(t, rot.STMRecords, rot.MTMRecords)
	assert.Less(t, rot.MTMRecords, rot.LTMRecords)
}

func TestDefaultWorkersConfig(t *testing.T) {
	w := DefaultWorkersConfig()
	assert.Positive(t, w.MaxWorkers)
	assert.Positive(t, w.QueueSize)
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	require.NotEmpty(t, rules.SafetyRules)
	require.NotEmpty(t, rules.EthicsRules)

	for _, r := range rules.EthicsRules {
		assert.NotEmpty(t, r.Pattern)
		assert.Contains(t, []reason.EthicsAction{reason.EthicsBlock, reason.EthicsWarn}, r.Action)
	}
}

func TestDefaultMetricsConfig(t *testing.T) {
	assert.Equal(t, "memflow", DefaultMetricsConfig().Namespace)
}
