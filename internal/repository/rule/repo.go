// Package rule persists versioned policy rules.
package rule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kailas-cloud/docreview/internal/db/sqldb"
	"github.com/kailas-cloud/docreview/internal/domain"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
)

// Repo stores rules and their append-only version history.
type Repo struct {
	db *gorm.DB
}

// New creates a rule repository.
func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates the rules and rule_versions tables.
func (r *Repo) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&ruleRow{}, &versionRow{}); err != nil {
		return fmt.Errorf("migrate rules: %w", err)
	}
	return nil
}

// Save writes the rule head and one version row in a single transaction.
// The version is assigned here: 1 for a new id, previous+1 otherwise. CreatedAt of an existing rule is kept.
func (r *Repo) Save(ctx context.Context, rl domrule.Rule) (domrule.Rule, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur ruleRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "version", "created_at").
			Where("id = ?", rl.ID).Take(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rl.Version = 1
			if rl.CreatedAt.IsZero() {
				rl.CreatedAt = rl.UpdatedAt
			}
		case err != nil:
			return fmt.Errorf("select rule %s: %w", rl.ID, err)
		default:
			rl.Version = cur.Version + 1
			rl.CreatedAt = cur.CreatedAt
		}

		row := toRow(rl)
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("upsert rule %s: %w", rl.ID, err)
		}
		vrow := toVersionRow(rl.Snapshot())
		if err := tx.Create(&vrow).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.NewConcurrentModification(rl.ID, int64(rl.Version))
			}
			return fmt.Errorf("insert rule version %s@%d: %w", rl.ID, rl.Version, err)
		}
		return nil
	})
	if err != nil {
		return domrule.Rule{}, err
	}
	return rl, nil
}

// Get returns the current head of a rule.
func (r *Repo) Get(ctx context.Context, id string) (domrule.Rule, error) {
	var row ruleRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domrule.Rule{}, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
		}
		return domrule.Rule{}, fmt.Errorf("select rule %s: %w", id, err)
	}
	return fromRow(row), nil
}

// List returns one page of rules, most recently updated first.
func (r *Repo) List(ctx context.Context, q domrule.ListQuery) (domrule.Page, error) {
	q = q.Clamp()
	filter := func(tx *gorm.DB) *gorm.DB {
		if q.Q != "" {
			like := sqldb.Like(strings.ToLower(q.Q))
			tx = tx.Where(
				`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\' OR tags_text LIKE ? ESCAPE '\')`,
				like, like, like,
			)
		}
		if q.Category != "" {
			tx = tx.Where("LOWER(category) = ?", strings.ToLower(q.Category))
		}
		return tx
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&ruleRow{}).Scopes(filter).Count(&total).Error; err != nil {
		return domrule.Page{}, fmt.Errorf("count rules: %w", err)
	}
	var rows []ruleRow
	err := r.db.WithContext(ctx).Model(&ruleRow{}).Scopes(filter).
		Order("updated_at DESC").Order("id ASC").
		Offset(q.Offset()).Limit(q.PageSize).
		Find(&rows).Error
	if err != nil {
		return domrule.Page{}, fmt.Errorf("select rules: %w", err)
	}
	items := make([]domrule.Rule, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromRow(row))
	}
	return domrule.Page{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Versions returns the history of a rule, newest first.
func (r *Repo) Versions(ctx context.Context, id string) ([]domrule.Version, error) {
	var rows []versionRow
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", id).
		Order("version DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select rule versions %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	out := make([]domrule.Version, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromVersionRow(row))
	}
	return out, nil
}

// Delete removes rules and their history. Unknown ids are ignored.
func (r *Repo) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id IN ?", ids).Delete(&ruleRow{})
		if res.Error != nil {
			return fmt.Errorf("delete rules: %w", res.Error)
		}
		removed = res.RowsAffected
		if err := tx.Where("rule_id IN ?", ids).Delete(&versionRow{}).Error; err != nil {
			return fmt.Errorf("delete rule versions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

// All returns every rule ordered by id. Used to rebuild the rule index.
func (r *Repo) All(ctx context.Context) ([]domrule.Rule, error) {
	var rows []ruleRow
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select all rules: %w", err)
	}
	out := make([]domrule.Rule, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// ExistsTitle reports whether a rule with this title exists (case-insensitive).
func (r *Repo) ExistsTitle(ctx context.Context, title string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ruleRow{}).
		Where("LOWER(title) = ?", strings.ToLower(strings.TrimSpace(title))).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count rules by title: %w", err)
	}
	return n > 0, nil
}
