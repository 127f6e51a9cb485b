// =============================================================================
// 📦 测试数据工厂 - 频谱查询测试数据
// =============================================================================
// 提供预定义的查询请求、区域配置与引擎响应，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
)

// Ruleset 默认规则集
const Ruleset = "US_47_CFR_PART_15_SUBPART_E"

// =============================================================================
// 🎯 区域配置
// =============================================================================

// RegionConfig 返回指定区域的最小配置文档
func RegionConfig(region string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"regionStr": %q,
		"maxEIRP": 36,
		"minEIRP": 21,
		"buildingPenetrationLoss": {"kind": "Fixed Value", "value": 20.5},
		"ulsDatabase": "CONUS_ULS_LATEST.sqlite3"
	}`, region))
}

// =============================================================================
// 📨 查询请求
// =============================================================================

// Item 返回单个查询条目
func Item(requestID, serial, certID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"requestId": %q,
		"deviceDescriptor": {
			"serialNumber": %q,
			"certificationId": [{"nra": "FCC", "id": %q}],
			"rulesetIds": [%q]
		},
		"location": {
			"ellipse": {"center": {"longitude": -97.730855, "latitude": 30.291355}, "majorAxis": 100, "minorAxis": 50, "orientation": 45},
			"elevation": {"height": 3, "heightType": "AGL", "verticalUncertainty": 2},
			"indoorDeployment": 2
		},
		"inquiredFrequencyRange": [{"lowFrequency": 5925, "highFrequency": 6425}],
		"inquiredChannels": [{"globalOperatingClass": 133}]
	}`, requestID, serial, certID, Ruleset))
}

// Batch 返回包含多个条目的请求体
func Batch(version string, items ...json.RawMessage) []byte {
	data, err := json.Marshal(map[string]any{
		"version":                          version,
		"availableSpectrumInquiryRequests": items,
	})
	if err != nil {
		panic(err)
	}
	return data
}

// =============================================================================
// 📤 引擎响应
// =============================================================================

// SuccessDocument 返回引擎成功计算后的响应文档
func SuccessDocument(requestID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"version": "1.3",
		"availableSpectrumInquiryResponses": [{
			"requestId": %q,
			"rulesetId": %q,
			"availableChannelInfo": [{"globalOperatingClass": 133, "channelCfi": [7, 23, 39], "maxEirp": [36, 36, 36]}],
			"response": {"responseCode": 0, "shortDescription": "Success"}
		}]
	}`, requestID, Ruleset))
}
