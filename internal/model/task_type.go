package model

import (
	"encoding/json"
)

// FlowMeta 多阶段流水线元信息，随事件一起下发，
// 订阅端无需二次查询即可渲染"第几步/共几步"。
type FlowMeta struct {
	FlowID     string `json:"flow_id,omitempty"`
	StageIndex int    `json:"stage_index,omitempty"`
	StageTotal int    `json:"stage_total,omitempty"`
	StageTitle string `json:"stage_title,omitempty"`
}

// TypeSpec 任务类型的静态定义
type TypeSpec struct {
	// RequiresLocale 生成类任务必须在 payload 中携带 locale
	RequiresLocale bool
	// Billable 提交时是否冻结资金
	Billable bool
	// FreezeAmount 冻结额度（积分）
	FreezeAmount int64
	// Flow 该类型所属的流水线阶段（无流水线则为零值）
	Flow FlowMeta
}

// taskTypes 任务类型注册表。
// 核心只认识这里列出的类型；payload 其余字段对核心不可见，由 job handler 自行解释。
var taskTypes = map[string]TypeSpec{
	"script_generation": {
		RequiresLocale: true,
		Billable:       true,
		FreezeAmount:   20,
		Flow:           FlowMeta{FlowID: "episode_pipeline", StageIndex: 1, StageTotal: 3, StageTitle: "剧本生成"},
	},
	"storyboard_generation": {
		RequiresLocale: true,
		Billable:       true,
		FreezeAmount:   40,
		Flow:           FlowMeta{FlowID: "episode_pipeline", StageIndex: 2, StageTotal: 3, StageTitle: "分镜生成"},
	},
	"image_generation": {
		RequiresLocale: false,
		Billable:       true,
		FreezeAmount:   60,
		Flow:           FlowMeta{FlowID: "episode_pipeline", StageIndex: 3, StageTotal: 3, StageTitle: "图像生成"},
	},
	"voice_synthesis": {
		RequiresLocale: true,
		Billable:       true,
		FreezeAmount:   30,
	},
	"thumbnail_render": {
		RequiresLocale: false,
		Billable:       false,
	},
}

// LookupType 查询任务类型定义
func LookupType(taskType string) (TypeSpec, bool) {
	spec, ok := taskTypes[taskType]
	return spec, ok
}

// payloadView 核心自己读取的 payload 字段子集，其余保持不透明
type payloadView struct {
	Locale string `json:"locale"`
}

// PayloadLocale 从不透明 payload 中提取 locale 字段。
// payload 不是合法 JSON 时按缺失处理。
func PayloadLocale(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var v payloadView
	if err := json.Unmarshal(payload, &v); err != nil {
		return ""
	}
	return v.Locale
}

// ValidatePayload 校验核心关心的 payload 子集。
// 返回 false 表示 payload 损坏（缺少必填 locale），任务不可执行。
func ValidatePayload(taskType string, payload json.RawMessage) bool {
	spec, ok := taskTypes[taskType]
	if !ok {
		return false
	}
	if spec.RequiresLocale && PayloadLocale(payload) == "" {
		return false
	}
	return true
}
