package rule

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
)

type ruleRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	Version    int    `gorm:"not null"`
	Title      string `gorm:"size:256;not null;index"`
	Summary    string `gorm:"type:text"`
	Content    string `gorm:"type:text;not null"`
	Category   string `gorm:"size:128;index"`
	Tags       datatypes.JSONType[[]string]
	TagsText   string `gorm:"type:text"`
	RiskTags   datatypes.JSONType[[]string]
	Scope      datatypes.JSONType[domrule.Scope]
	ChangeNote string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false;not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false;not null;index"`
}

func (ruleRow) TableName() string { return "rules" }

// versionRow is append-only. (rule_id, version) is unique.
type versionRow struct {
	Seq        int64  `gorm:"primaryKey;autoIncrement"`
	RuleID     string `gorm:"size:64;not null;uniqueIndex:idx_rule_versions_rule_version,priority:1"`
	Version    int    `gorm:"not null;uniqueIndex:idx_rule_versions_rule_version,priority:2"`
	Title      string `gorm:"size:256;not null"`
	Summary    string `gorm:"type:text"`
	Content    string `gorm:"type:text;not null"`
	RiskTags   datatypes.JSONType[[]string]
	Scope      datatypes.JSONType[domrule.Scope]
	ChangeNote string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false;not null"`
}

func (versionRow) TableName() string { return "rule_versions" }

func toRow(r domrule.Rule) ruleRow {
	return ruleRow{
		ID:         r.ID,
		Version:    r.Version,
		Title:      r.Title,
		Summary:    r.Summary,
		Content:    r.Content,
		Category:   r.Category,
		Tags:       datatypes.NewJSONType(r.Tags),
		TagsText:   strings.ToLower(strings.Join(r.Tags, " ")),
		RiskTags:   datatypes.NewJSONType(r.RiskTags),
		Scope:      datatypes.NewJSONType(r.Scope),
		ChangeNote: r.ChangeNote,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func fromRow(row ruleRow) domrule.Rule {
	return domrule.Rule{
		ID:         row.ID,
		Version:    row.Version,
		Title:      row.Title,
		Summary:    row.Summary,
		Content:    row.Content,
		Category:   row.Category,
		Tags:       row.Tags.Data(),
		RiskTags:   row.RiskTags.Data(),
		Scope:      row.Scope.Data(),
		ChangeNote: row.ChangeNote,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func toVersionRow(v domrule.Version) versionRow {
	return versionRow{
		RuleID:     v.RuleID,
		Version:    v.Version,
		Title:      v.Title,
		Summary:    v.Summary,
		Content:    v.Content,
		RiskTags:   datatypes.NewJSONType(v.RiskTags),
		Scope:      datatypes.NewJSONType(v.Scope),
		ChangeNote: v.ChangeNote,
		CreatedAt:  v.CreatedAt.UTC(),
	}
}

func fromVersionRow(row versionRow) domrule.Version {
	return domrule.Version{
		RuleID:     row.RuleID,
		Version:    row.Version,
		Title:      row.Title,
		Summary:    row.Summary,
		Content:    row.Content,
		RiskTags:   row.RiskTags.Data(),
		Scope:      row.Scope.Data(),
		ChangeNote: row.ChangeNote,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}
