// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供集中式 TLS 配置：TLS 1.2+，仅 AEAD 密码套件。
// redisx 在启用 TLS 时使用 ClientConfigFor，health 子命令使用 SecureHTTPClient。
package tlsutil
