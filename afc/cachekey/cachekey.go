package cachekey

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Region prefixes that share the engine behaviour of their base region.
var aliasPrefixes = []string{"TEST_", "DEMO_"}

// regionField is the config attribute holding the region string.
const regionField = "regionStr"

// Keys is the result of hashing one (config, request) pair.
type Keys struct {
	// ConfigHash identifies the config alone and names its cfg/ folder.
	ConfigHash string
	// CombinedHash identifies the config+request pair and names its pro/ folder.
	CombinedHash string
	// ConfigBytes is the canonical config the hash was computed over.
	ConfigBytes []byte
	// RequestBytes is the canonical request the hash was computed over.
	RequestBytes []byte
	// PersistedConfig is what gets written to storage. It equals ConfigBytes
	// unless the region is a TEST_/DEMO_ alias, in which case regionStr is
	// rewritten to the base region.
	PersistedConfig []byte
}

// Builder derives content-addressable keys. It is stateless and safe for
// concurrent use.
type Builder struct{}

// NewBuilder 创建缓存键构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// Build canonicalizes config and request, then feeds them through a single
// md5 accumulator: the config digest is snapshotted first and the same
// accumulator is continued with the request bytes for the combined digest.
func (b *Builder) Build(config, request []byte) (*Keys, error) {
	cfgBytes, err := Canonicalize(config)
	if err != nil {
		return nil, fmt.Errorf("canonicalize config: %w", err)
	}
	reqBytes, err := Canonicalize(request)
	if err != nil {
		return nil, fmt.Errorf("canonicalize request: %w", err)
	}

	h := md5.New()
	h.Write(cfgBytes)
	configHash := hex.EncodeToString(h.Sum(nil))
	h.Write(reqBytes)
	combinedHash := hex.EncodeToString(h.Sum(nil))

	persisted, err := persistedConfig(cfgBytes)
	if err != nil {
		return nil, err
	}

	return &Keys{
		ConfigHash:      configHash,
		CombinedHash:    combinedHash,
		ConfigBytes:     cfgBytes,
		RequestBytes:    reqBytes,
		PersistedConfig: persisted,
	}, nil
}

// ConfigPath returns the key of the persisted config inside the cfg namespace.
func (k *Keys) ConfigPath(region string) string {
	return region + "/" + k.ConfigHash
}

// BaseRegion strips a TEST_/DEMO_ alias prefix.
func BaseRegion(region string) string {
	for _, p := range aliasPrefixes {
		if strings.HasPrefix(region, p) {
			return region[len(p):]
		}
	}
	return region
}

// IsAliasRegion reports whether region carries a TEST_/DEMO_ prefix.
func IsAliasRegion(region string) bool {
	return BaseRegion(region) != region
}

func persistedConfig(canonical []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(canonical))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		// not an object: nothing to rewrite
		return canonical, nil
	}
	region, _ := doc[regionField].(string)
	if !IsAliasRegion(region) {
		return canonical, nil
	}
	doc[regionField] = BaseRegion(region)
	out, err := CanonicalizeValue(doc)
	if err != nil {
		return nil, fmt.Errorf("rewrite region: %w", err)
	}
	return out, nil
}
