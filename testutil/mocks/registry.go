// =============================================================================
// 🗂️ StaticRegistry - 设备注册表模拟实现
// =============================================================================
// 不依赖数据库的授权与区域配置，供协调器与处理器测试使用
// =============================================================================
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BaSui01/afcflow/afc/registry"
	"github.com/BaSui01/afcflow/types"
)

// StaticRegistry 是设备注册表的模拟实现
type StaticRegistry struct {
	mu      sync.RWMutex
	devices map[string]string // serial -> org
	configs map[string]json.RawMessage

	configErr error
	authCalls int
}

// NewStaticRegistry 创建模拟注册表
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		devices: make(map[string]string),
		configs: make(map[string]json.RawMessage),
	}
}

// WithDevice 注册设备
func (r *StaticRegistry) WithDevice(serial, org string) *StaticRegistry {
	r.mu.Lock()
	r.devices[serial] = org
	r.mu.Unlock()
	return r
}

// WithConfig 注册区域配置
func (r *StaticRegistry) WithConfig(region string, doc json.RawMessage) *StaticRegistry {
	r.mu.Lock()
	r.configs[region] = doc
	r.mu.Unlock()
	return r
}

// WithConfigError 注入配置读取错误
func (r *StaticRegistry) WithConfigError(err error) *StaticRegistry {
	r.mu.Lock()
	r.configErr = err
	r.mu.Unlock()
	return r
}

// Authorize 实现 registry.Authorizer
func (r *StaticRegistry) Authorize(_ context.Context, dev *registry.DeviceDescriptor) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authCalls++
	if dev == nil || dev.SerialNumber == "" {
		return "", types.NewMissingParamError("serialNumber")
	}
	org, ok := r.devices[dev.SerialNumber]
	if !ok {
		return "", types.NewDeviceUnallowedError()
	}
	return org, nil
}

// ConfigFor 实现 registry.ConfigStore
func (r *StaticRegistry) ConfigFor(_ context.Context, region string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.configErr != nil {
		return nil, r.configErr
	}
	doc, ok := r.configs[region]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrConfigNotFound, region)
	}
	return doc, nil
}

// AuthCalls 返回授权调用次数
func (r *StaticRegistry) AuthCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authCalls
}
