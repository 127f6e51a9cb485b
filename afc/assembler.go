package afc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc/objstore"
	"github.com/BaSui01/afcflow/internal/pool"
	"github.com/BaSui01/afcflow/types"
)

// MapInfoExtensionID names the vendor extension carrying GUI map artifacts.
const MapInfoExtensionID = "openAfc.mapinfo"

// Assembler builds the client response of a successful task.
type Assembler struct {
	store  objstore.Store
	logger *zap.Logger
}

// NewAssembler 创建结果组装器
func NewAssembler(store objstore.Store, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: store, logger: logger.With(zap.String("component", "assembler"))}
}

// Assemble reads the cached response of task.Hash, keeps a debug copy when
// asked to, decompresses it and, for GUI callers, attaches the map artifacts
// as a vendor extension of the first response.
func (a *Assembler) Assemble(ctx context.Context, task *Task) (json.RawMessage, error) {
	gz, err := objstore.ReadObject(ctx, a.store, objstore.NamespaceProcessing, responseKey(task.Hash))
	if err != nil {
		return nil, types.NewStorageError("failed to read analysis response", err)
	}

	if task.Options.Has(types.OptDebug) && task.HistoryDir != "" {
		if err := objstore.WriteObject(ctx, a.store, objstore.NamespaceHistory,
			historyKey(task.HistoryDir, responseFile), gz); err != nil {
			return nil, types.NewStorageError("failed to copy analysis response to history", err)
		}
	}

	doc, err := gunzip(gz)
	if err != nil {
		return nil, types.NewStorageError("failed to decompress analysis response", err)
	}

	if task.Options.Has(types.OptGUI) {
		doc, err = a.attachMapInfo(ctx, task.ID, doc)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

type mapInfoParams struct {
	KMZFile     *string `json:"kmzFile"`
	GeoJSONFile *string `json:"geoJsonFile"`
}

type vendorExtension struct {
	ExtensionID string        `json:"extensionId"`
	Parameters  mapInfoParams `json:"parameters"`
}

func (a *Assembler) attachMapInfo(ctx context.Context, taskID string, doc json.RawMessage) (json.RawMessage, error) {
	var params mapInfoParams

	if kmz, ok := a.readOptional(ctx, kmzKey(taskID)); ok {
		s := base64.StdEncoding.EncodeToString(kmz)
		params.KMZFile = &s
	}
	if gz, ok := a.readOptional(ctx, mapDataKey(taskID)); ok {
		geo, err := gunzip(gz)
		if err != nil {
			a.logger.Warn("map data is not valid gzip", zap.String("task_id", taskID), zap.Error(err))
		} else {
			s := string(geo)
			params.GeoJSONFile = &s
		}
	}
	if params.KMZFile == nil && params.GeoJSONFile == nil {
		return doc, nil
	}
	return appendVendorExtension(doc, vendorExtension{ExtensionID: MapInfoExtensionID, Parameters: params})
}

// readOptional treats any read failure as absence.
func (a *Assembler) readOptional(ctx context.Context, key string) ([]byte, bool) {
	data, err := objstore.ReadObject(ctx, a.store, objstore.NamespaceProcessing, key)
	if err != nil {
		if !objstore.IsNotFound(err) {
			a.logger.Debug("optional artifact unreadable", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// appendVendorExtension adds ext to availableSpectrumInquiryResponses[0].vendorExtensions,
// creating the list when absent. Everything else in the document is kept as is.
func appendVendorExtension(doc json.RawMessage, ext vendorExtension) (json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(doc, &top); err != nil {
		return nil, types.NewGeneralFailureError("analysis response is not a JSON object").WithCause(err)
	}
	var responses []map[string]json.RawMessage
	if err := json.Unmarshal(top["availableSpectrumInquiryResponses"], &responses); err != nil || len(responses) == 0 {
		return nil, types.NewGeneralFailureError("analysis response has no availableSpectrumInquiryResponses")
	}

	var exts []json.RawMessage
	if raw, ok := responses[0]["vendorExtensions"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &exts); err != nil {
			return nil, types.NewGeneralFailureError("vendorExtensions is not a list").WithCause(err)
		}
	}
	encoded, err := json.Marshal(ext)
	if err != nil {
		return nil, fmt.Errorf("marshal vendor extension: %w", err)
	}
	exts = append(exts, encoded)

	if responses[0]["vendorExtensions"], err = json.Marshal(exts); err != nil {
		return nil, err
	}
	if top["availableSpectrumInquiryResponses"], err = json.Marshal(responses); err != nil {
		return nil, err
	}
	return json.Marshal(top)
}

func gunzip(data []byte) ([]byte, error) {
	return pool.Gunzip(data)
}
