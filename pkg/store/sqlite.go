package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// proxyServerModel is the GORM row for a persisted server descriptor.
type proxyServerModel struct {
	ID                 string `gorm:"primaryKey;type:varchar(64)"`
	ExternalHostName   string `gorm:"type:text"`
	UseSecureTransport bool
	Port               int
	AutoStart          bool
	FallbackStatusCode int
}

func (proxyServerModel) TableName() string { return "proxy_servers" }

// stumpModel is the GORM row for a persisted stump. Rules and headers
// are stored as JSON text; body blobs as raw bytes.
type stumpModel struct {
	RowID                     uint   `gorm:"primaryKey;autoIncrement"`
	ServerID                  string `gorm:"index:idx_server_stump,unique;type:varchar(64)"`
	StumpID                   string `gorm:"index:idx_server_stump,unique;type:varchar(64)"`
	Name                      string `gorm:"type:text"`
	RulesJSON                 string `gorm:"type:text"`
	ResponseStatusCode        int
	ResponseStatusDescription string `gorm:"type:text"`
	ResponseHeadersJSON       string `gorm:"type:text"`
	ResponseContentType       string `gorm:"type:text"`
	ResponseIsImage           bool
	ResponseIsText            bool
	RequestBody               []byte `gorm:"type:blob"`
	ResponseBody              []byte `gorm:"type:blob"`
}

func (stumpModel) TableName() string { return "stumps" }

// SQLite is a DataAccess implementation backed by a GORM SQLite database.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if necessary) the database at path and
// migrates the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&proxyServerModel{}, &stumpModel{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &SQLite{db: db}, nil
}

// ProxyServerFind returns the descriptor for a server id.
func (s *SQLite) ProxyServerFind(serverID string) (*ProxyServerEntity, error) {
	var row proxyServerModel
	err := s.db.First(&row, "id = ?", serverID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("proxy server %q: %w", serverID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return serverEntityFromRow(&row), nil
}

// ProxyServerFindAll returns all persisted server descriptors.
func (s *SQLite) ProxyServerFindAll() ([]*ProxyServerEntity, error) {
	var rows []proxyServerModel
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ProxyServerEntity, 0, len(rows))
	for i := range rows {
		out = append(out, serverEntityFromRow(&rows[i]))
	}
	return out, nil
}

// ProxyServerCreate persists a new server descriptor.
func (s *SQLite) ProxyServerCreate(entity *ProxyServerEntity) error {
	if entity == nil || entity.ID == "" {
		return ErrInvalidID
	}
	var count int64
	if err := s.db.Model(&proxyServerModel{}).Where("id = ?", entity.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("proxy server %q: %w", entity.ID, ErrAlreadyExists)
	}
	row := proxyServerModel{
		ID:                 entity.ID,
		ExternalHostName:   entity.ExternalHostName,
		UseSecureTransport: entity.UseSecureTransport,
		Port:               entity.Port,
		AutoStart:          entity.AutoStart,
		FallbackStatusCode: entity.FallbackStatusCode,
	}
	return s.db.Create(&row).Error
}

// ProxyServerDelete removes a server descriptor and its stumps.
func (s *SQLite) ProxyServerDelete(serverID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&proxyServerModel{}, "id = ?", serverID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("proxy server %q: %w", serverID, ErrNotFound)
		}
		return tx.Delete(&stumpModel{}, "server_id = ?", serverID).Error
	})
}

// StumpFindAll returns all stump records for a server in insertion order.
func (s *SQLite) StumpFindAll(serverID string) ([]*StumpRecord, error) {
	var rows []stumpModel
	if err := s.db.Order("row_id").Find(&rows, "server_id = ?", serverID).Error; err != nil {
		return nil, err
	}
	out := make([]*StumpRecord, 0, len(rows))
	for i := range rows {
		rec, err := stumpRecordFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// StumpCreate persists a stump entity with its body blobs.
func (s *SQLite) StumpCreate(serverID string, entity *StumpEntity, requestBody, responseBody []byte) error {
	if entity == nil || entity.ID == "" {
		return ErrInvalidID
	}

	rulesJSON, err := json.Marshal(entity.Rules)
	if err != nil {
		return fmt.Errorf("encode stump rules: %w", err)
	}
	headersJSON, err := json.Marshal(entity.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("encode stump headers: %w", err)
	}

	var count int64
	if err := s.db.Model(&stumpModel{}).
		Where("server_id = ? AND stump_id = ?", serverID, entity.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("stump %q: %w", entity.ID, ErrAlreadyExists)
	}

	row := stumpModel{
		ServerID:                  serverID,
		StumpID:                   entity.ID,
		Name:                      entity.Name,
		RulesJSON:                 string(rulesJSON),
		ResponseStatusCode:        entity.ResponseStatusCode,
		ResponseStatusDescription: entity.ResponseStatusDescription,
		ResponseHeadersJSON:       string(headersJSON),
		ResponseContentType:       entity.ResponseContentType,
		ResponseIsImage:           entity.ResponseIsImage,
		ResponseIsText:            entity.ResponseIsText,
		RequestBody:               requestBody,
		ResponseBody:              responseBody,
	}
	return s.db.Create(&row).Error
}

// StumpDelete removes a stump from a server.
func (s *SQLite) StumpDelete(serverID, stumpID string) error {
	res := s.db.Delete(&stumpModel{}, "server_id = ? AND stump_id = ?", serverID, stumpID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("stump %q: %w", stumpID, ErrNotFound)
	}
	return nil
}

func serverEntityFromRow(row *proxyServerModel) *ProxyServerEntity {
	return &ProxyServerEntity{
		ID:                 row.ID,
		ExternalHostName:   row.ExternalHostName,
		UseSecureTransport: row.UseSecureTransport,
		Port:               row.Port,
		AutoStart:          row.AutoStart,
		FallbackStatusCode: row.FallbackStatusCode,
	}
}

func stumpRecordFromRow(row *stumpModel) (*StumpRecord, error) {
	entity := StumpEntity{
		ID:                        row.StumpID,
		Name:                      row.Name,
		ResponseStatusCode:        row.ResponseStatusCode,
		ResponseStatusDescription: row.ResponseStatusDescription,
		ResponseContentType:       row.ResponseContentType,
		ResponseIsImage:           row.ResponseIsImage,
		ResponseIsText:            row.ResponseIsText,
	}
	if row.RulesJSON != "" {
		if err := json.Unmarshal([]byte(row.RulesJSON), &entity.Rules); err != nil {
			return nil, fmt.Errorf("decode stump rules: %w", err)
		}
	}
	if row.ResponseHeadersJSON != "" {
		if err := json.Unmarshal([]byte(row.ResponseHeadersJSON), &entity.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("decode stump headers: %w", err)
		}
	}
	return &StumpRecord{
		Entity:       entity,
		RequestBody:  row.RequestBody,
		ResponseBody: row.ResponseBody,
	}, nil
}

// Ensure SQLite implements DataAccess.
var _ DataAccess = (*SQLite)(nil)
