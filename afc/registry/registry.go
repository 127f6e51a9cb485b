package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/afcflow/types"
)

// DefaultRuleset is the only ruleset accepted unless configured otherwise.
const DefaultRuleset = "US_47_CFR_PART_15_SUBPART_E"

// TrialSerialNumber bypasses the registry; the caller's user id becomes the org.
const TrialSerialNumber = "TestSerialNumber"

// ErrConfigNotFound is returned when no config exists for a region.
var ErrConfigNotFound = errors.New("region config not found")

// CertificationID is one {nra,id} pair of the device descriptor.
type CertificationID struct {
	NRA string `json:"nra"`
	ID  string `json:"id"`
}

// DeviceDescriptor carries what authorization needs from a request.
type DeviceDescriptor struct {
	SerialNumber    string            `json:"serialNumber"`
	CertificationID []CertificationID `json:"certificationId"`
	RulesetIDs      []string          `json:"rulesetIds"`
}

// FirstCertID renders the first certification entry as "<nra> <id>".
func (d *DeviceDescriptor) FirstCertID() (string, bool) {
	if len(d.CertificationID) == 0 {
		return "", false
	}
	c := d.CertificationID[0]
	if c.NRA == "" || c.ID == "" {
		return "", false
	}
	return c.NRA + " " + c.ID, true
}

// NRA returns the regulatory authority of the first certification entry.
func (d *DeviceDescriptor) NRA() string {
	if len(d.CertificationID) == 0 {
		return ""
	}
	return strings.TrimSpace(d.CertificationID[0].NRA)
}

// Authorizer decides which organization a device acts for.
type Authorizer interface {
	Authorize(ctx context.Context, dev *DeviceDescriptor) (org string, err error)
}

// ConfigStore resolves the config document of a region.
type ConfigStore interface {
	ConfigFor(ctx context.Context, region string) (json.RawMessage, error)
}

// =============================================================================
// 🗄️ GORM 实现
// =============================================================================

// Registry implements Authorizer and ConfigStore on a gorm database.
type Registry struct {
	db       *gorm.DB
	rulesets map[string]struct{}
	logger   *zap.Logger
}

// New 创建设备注册表，allowedRulesets 为空时只接受 DefaultRuleset
func New(db *gorm.DB, allowedRulesets []string, logger *zap.Logger) *Registry {
	if len(allowedRulesets) == 0 {
		allowedRulesets = []string{DefaultRuleset}
	}
	rs := make(map[string]struct{}, len(allowedRulesets))
	for _, r := range allowedRulesets {
		rs[r] = struct{}{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{db: db, rulesets: rs, logger: logger.With(zap.String("component", "registry"))}
}

// Authorize checks the device against the registry. Checks run in a fixed
// order so the reported error is stable for a given descriptor.
func (r *Registry) Authorize(ctx context.Context, dev *DeviceDescriptor) (string, error) {
	if dev == nil || dev.SerialNumber == "" {
		return "", types.NewMissingParamError("serialNumber")
	}

	if dev.SerialNumber == TrialSerialNumber {
		userID, ok := types.UserID(ctx)
		if !ok {
			return "", types.NewDeviceUnallowedError()
		}
		return "Trial_" + userID, nil
	}

	if len(dev.RulesetIDs) != 1 {
		return "", types.NewInvalidValueError("rulesets")
	}
	if _, ok := r.rulesets[dev.RulesetIDs[0]]; !ok {
		return "", types.NewInvalidValueError("rulesets")
	}

	var ap AccessPoint
	err := r.db.WithContext(ctx).Where("serial_number = ?", dev.SerialNumber).First(&ap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", types.NewDeviceUnallowedError()
	}
	if err != nil {
		return "", types.NewError(types.ErrServiceUnavailable, "access point lookup failed").WithCause(err)
	}

	certID, ok := dev.FirstCertID()
	if !ok {
		return "", types.NewMissingParamError("certificationId")
	}
	if certID != ap.CertificationID {
		r.logger.Debug("certification mismatch", zap.String("serial", dev.SerialNumber))
		return "", types.NewDeviceUnallowedError()
	}
	return ap.Org, nil
}

// ConfigFor loads the config document of region.
func (r *Registry) ConfigFor(ctx context.Context, region string) (json.RawMessage, error) {
	var cfg AFCConfig
	err := r.db.WithContext(ctx).Where("region = ?", region).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, region)
	}
	if err != nil {
		return nil, fmt.Errorf("load config for %s: %w", region, err)
	}
	if !json.Valid([]byte(cfg.Config)) {
		return nil, fmt.Errorf("config for %s is not valid JSON", region)
	}
	return json.RawMessage(cfg.Config), nil
}

// PutConfig inserts or replaces the config of region.
func (r *Registry) PutConfig(ctx context.Context, region string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return fmt.Errorf("config for %s is not valid JSON", region)
	}
	row := AFCConfig{Region: region, Config: string(doc)}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "region"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "updated_at"}),
	}).Create(&row).Error
}

// PutAccessPoint inserts or replaces an access point by serial number.
func (r *Registry) PutAccessPoint(ctx context.Context, ap *AccessPoint) error {
	if ap.SerialNumber == "" || ap.CertificationID == "" || ap.Org == "" {
		return fmt.Errorf("access point needs serial number, certification id and org")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "serial_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"certification_id", "org", "updated_at"}),
	}).Create(ap).Error
}

// ListAccessPoints returns every access point ordered by serial number.
func (r *Registry) ListAccessPoints(ctx context.Context) ([]AccessPoint, error) {
	var aps []AccessPoint
	if err := r.db.WithContext(ctx).Order("serial_number ASC").Find(&aps).Error; err != nil {
		return nil, fmt.Errorf("list access points: %w", err)
	}
	return aps, nil
}

// DeleteAccessPoint removes an access point. Returns false when no row matched.
func (r *Registry) DeleteAccessPoint(ctx context.Context, serial string) (bool, error) {
	res := r.db.WithContext(ctx).Where("serial_number = ?", serial).Delete(&AccessPoint{})
	if res.Error != nil {
		return false, fmt.Errorf("delete access point %s: %w", serial, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Regions lists the regions that have a config.
func (r *Registry) Regions(ctx context.Context) ([]string, error) {
	var regions []string
	if err := r.db.WithContext(ctx).Model(&AFCConfig{}).Order("region ASC").Pluck("region", &regions).Error; err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regions, nil
}

// Ping checks the database connection.
func (r *Registry) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// =============================================================================
// 🌐 区域映射
// =============================================================================

var nraRegions = map[string]string{
	"FCC":      "US",
	"ISED":     "CA",
	"OFCOM":    "GB",
	"TEST_FCC": "TEST_US",
	"DEMO_FCC": "DEMO_US",
}

// RegionForNRA maps a regulatory authority onto its region string. Unknown
// authorities map onto themselves.
func RegionForNRA(nra string) string {
	if r, ok := nraRegions[strings.ToUpper(strings.TrimSpace(nra))]; ok {
		return r
	}
	return strings.TrimSpace(nra)
}
