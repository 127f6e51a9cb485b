package afc

import "path"

// Artifact names inside the object store.
const (
	configFile   = "afc_config.json"
	requestFile  = "analysisRequest.json"
	responseFile = "analysisResponse.json.gz"
	errorFile    = "engine-error.txt"
	kmzFile      = "results.kmz"
	mapDataFile  = "mapData.json.gz"
)

// cfg/<region>/<configHash>/afc_config.json
func configKey(configPath string) string { return path.Join(configPath, configFile) }

// pro/<hash>/analysisRequest.json
func requestKey(hash string) string { return path.Join(hash, requestFile) }

// pro/<hash>/analysisResponse.json.gz
func responseKey(hash string) string { return path.Join(hash, responseFile) }

// pro/<taskId>/engine-error.txt
func errorKey(taskID string) string { return path.Join(taskID, errorFile) }

func kmzKey(taskID string) string { return path.Join(taskID, kmzFile) }

func mapDataKey(taskID string) string { return path.Join(taskID, mapDataFile) }

// dbg/<historyDir>/<name>
func historyKey(dir, name string) string { return path.Join(dir, name) }
