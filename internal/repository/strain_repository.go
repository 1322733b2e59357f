package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/microvault/strain-registry/internal/model"
)

// strainColumns is the shared SELECT list for strain rows.  isolation_date is
// formatted in SQL so the DATE column round-trips as YYYY-MM-DD text.
const strainColumns = `id, strain_code, microorganism_type, genus, species, sample_type,
	origin_location, DATE_FORMAT(isolation_date, '%Y-%m-%d'),
	characteristics_macroscopic, characteristics_microscopic, characteristics_biochemical,
	potential_nitrogen_fixer, potential_phosphate_solubilizer, potential_proteolytic,
	potential_lipolytic, potential_amylolytic, potential_cellulolytic,
	potential_antimicrobial, potential_iaa_hormone,
	storage_location, storage_technique, culture_stock,
	biosafety_level, created_by, created_at, updated_at, deleted_at`

// potentialFlags maps filterable flag names to themselves; it doubles as the
// allow-list that keeps user-supplied filter names out of the SQL text.
var potentialFlags = map[string]bool{
	"potential_nitrogen_fixer":        true,
	"potential_phosphate_solubilizer": true,
	"potential_proteolytic":           true,
	"potential_lipolytic":             true,
	"potential_amylolytic":            true,
	"potential_cellulolytic":          true,
	"potential_antimicrobial":         true,
	"potential_iaa_hormone":           true,
}

// sortColumns is the allow-list for ORDER BY.  Anything else falls back to
// created_at.
var sortColumns = map[string]bool{
	"created_at":      true,
	"strain_code":     true,
	"genus":           true,
	"species":         true,
	"biosafety_level": true,
}

// StrainSearchQuery defines filters, sorting and pagination for listing
// strains.  MaxClearance is mandatory: the caller's biosafety clearance is
// applied as a hard filter, never as post-processing.
type StrainSearchQuery struct {
	MicroorganismType string
	Genus             string
	SampleType        string
	Search            string   // free text over code, genus, species, origin
	BiosafetyLevel    int      // exact level; 0 means unset
	Potentials        []string // flag column names that must be set

	MaxClearance int

	SortBy   string
	SortDesc bool
	Page     int
	PageSize int
}

// StrainUpdate carries a partial update: nil fields are left untouched.  The
// same struct is bound from the request body and, with omitempty, serves as
// the submitted diff in the audit event.
type StrainUpdate struct {
	StrainCode        *string `json:"strain_code,omitempty"`
	MicroorganismType *string `json:"microorganism_type,omitempty"`
	Genus             *string `json:"genus,omitempty"`
	Species           *string `json:"species,omitempty"`
	SampleType        *string `json:"sample_type,omitempty"`
	OriginLocation    *string `json:"origin_location,omitempty"`
	IsolationDate     *string `json:"isolation_date,omitempty"`

	CharacteristicsMacroscopic *string `json:"characteristics_macroscopic,omitempty"`
	CharacteristicsMicroscopic *string `json:"characteristics_microscopic,omitempty"`
	CharacteristicsBiochemical *string `json:"characteristics_biochemical,omitempty"`

	PotentialNitrogenFixer        *bool `json:"potential_nitrogen_fixer,omitempty"`
	PotentialPhosphateSolubilizer *bool `json:"potential_phosphate_solubilizer,omitempty"`
	PotentialProteolytic          *bool `json:"potential_proteolytic,omitempty"`
	PotentialLipolytic            *bool `json:"potential_lipolytic,omitempty"`
	PotentialAmylolytic           *bool `json:"potential_amylolytic,omitempty"`
	PotentialCellulolytic         *bool `json:"potential_cellulolytic,omitempty"`
	PotentialAntimicrobial        *bool `json:"potential_antimicrobial,omitempty"`
	PotentialIAAHormone           *bool `json:"potential_iaa_hormone,omitempty"`

	StorageLocation  *string `json:"storage_location,omitempty"`
	StorageTechnique *string `json:"storage_technique,omitempty"`
	CultureStock     *string `json:"culture_stock,omitempty"`

	BiosafetyLevel *int `json:"biosafety_level,omitempty"`
}

// setClauses converts the non-nil fields into SQL assignments and arguments.
func (u *StrainUpdate) setClauses() ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}
	if u.StrainCode != nil {
		add("strain_code", *u.StrainCode)
	}
	if u.MicroorganismType != nil {
		add("microorganism_type", *u.MicroorganismType)
	}
	if u.Genus != nil {
		add("genus", *u.Genus)
	}
	if u.Species != nil {
		add("species", *u.Species)
	}
	if u.SampleType != nil {
		add("sample_type", *u.SampleType)
	}
	if u.OriginLocation != nil {
		add("origin_location", *u.OriginLocation)
	}
	if u.IsolationDate != nil {
		add("isolation_date", *u.IsolationDate)
	}
	if u.CharacteristicsMacroscopic != nil {
		add("characteristics_macroscopic", *u.CharacteristicsMacroscopic)
	}
	if u.CharacteristicsMicroscopic != nil {
		add("characteristics_microscopic", *u.CharacteristicsMicroscopic)
	}
	if u.CharacteristicsBiochemical != nil {
		add("characteristics_biochemical", *u.CharacteristicsBiochemical)
	}
	if u.PotentialNitrogenFixer != nil {
		add("potential_nitrogen_fixer", *u.PotentialNitrogenFixer)
	}
	if u.PotentialPhosphateSolubilizer != nil {
		add("potential_phosphate_solubilizer", *u.PotentialPhosphateSolubilizer)
	}
	if u.PotentialProteolytic != nil {
		add("potential_proteolytic", *u.PotentialProteolytic)
	}
	if u.PotentialLipolytic != nil {
		add("potential_lipolytic", *u.PotentialLipolytic)
	}
	if u.PotentialAmylolytic != nil {
		add("potential_amylolytic", *u.PotentialAmylolytic)
	}
	if u.PotentialCellulolytic != nil {
		add("potential_cellulolytic", *u.PotentialCellulolytic)
	}
	if u.PotentialAntimicrobial != nil {
		add("potential_antimicrobial", *u.PotentialAntimicrobial)
	}
	if u.PotentialIAAHormone != nil {
		add("potential_iaa_hormone", *u.PotentialIAAHormone)
	}
	if u.StorageLocation != nil {
		add("storage_location", *u.StorageLocation)
	}
	if u.StorageTechnique != nil {
		add("storage_technique", *u.StorageTechnique)
	}
	if u.CultureStock != nil {
		add("culture_stock", *u.CultureStock)
	}
	if u.BiosafetyLevel != nil {
		add("biosafety_level", *u.BiosafetyLevel)
	}
	return cols, args
}

// Empty reports whether the update changes nothing.
func (u *StrainUpdate) Empty() bool {
	cols, _ := u.setClauses()
	return len(cols) == 0
}

// orderClause sanitizes the requested sort column against the allow-list and
// returns the ORDER BY fragment.  Unknown columns fall back to created_at.
func orderClause(sortBy string, desc bool) string {
	if !sortColumns[sortBy] {
		sortBy = "created_at"
	}
	if desc {
		return sortBy + " DESC"
	}
	return sortBy + " ASC"
}

// StrainRepo encapsulates all database queries against the `strains` table.
type StrainRepo struct {
	db    *sql.DB
	audit *AuditRepo
}

func NewStrainRepo(db *sql.DB, audit *AuditRepo) *StrainRepo {
	return &StrainRepo{db: db, audit: audit}
}

func scanStrain(scan func(...any) error) (*model.Strain, error) {
	var s model.Strain
	err := scan(&s.ID, &s.StrainCode, &s.MicroorganismType, &s.Genus, &s.Species, &s.SampleType,
		&s.OriginLocation, &s.IsolationDate,
		&s.CharacteristicsMacroscopic, &s.CharacteristicsMicroscopic, &s.CharacteristicsBiochemical,
		&s.PotentialNitrogenFixer, &s.PotentialPhosphateSolubilizer, &s.PotentialProteolytic,
		&s.PotentialLipolytic, &s.PotentialAmylolytic, &s.PotentialCellulolytic,
		&s.PotentialAntimicrobial, &s.PotentialIAAHormone,
		&s.StorageLocation, &s.StorageTechnique, &s.CultureStock,
		&s.BiosafetyLevel, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrainNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Search lists non-deleted strains matching the query.  The visibility
// filter (biosafety_level <= MaxClearance) is part of the WHERE clause so
// over-clearance rows never reach the application.  The total count is
// computed over the same predicate without limit/offset.
func (r *StrainRepo) Search(ctx context.Context, q StrainSearchQuery) ([]model.Strain, int64, error) {
	where := []string{"deleted_at IS NULL", "biosafety_level <= ?"}
	args := []any{q.MaxClearance}

	if q.MicroorganismType != "" {
		where = append(where, "microorganism_type = ?")
		args = append(args, q.MicroorganismType)
	}
	if q.Genus != "" {
		where = append(where, "genus = ?")
		args = append(args, q.Genus)
	}
	if q.SampleType != "" {
		where = append(where, "sample_type = ?")
		args = append(args, q.SampleType)
	}
	if q.BiosafetyLevel != 0 {
		where = append(where, "biosafety_level = ?")
		args = append(args, q.BiosafetyLevel)
	}
	if q.Search != "" {
		pat := "%" + strings.ToLower(q.Search) + "%"
		where = append(where,
			"(LOWER(strain_code) LIKE ? OR LOWER(genus) LIKE ? OR LOWER(species) LIKE ? OR LOWER(origin_location) LIKE ?)")
		args = append(args, pat, pat, pat, pat)
	}
	for _, flag := range q.Potentials {
		if potentialFlags[flag] {
			where = append(where, flag+" = 1")
		}
	}

	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strains WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = 20
	}
	limit := size
	offset := (page - 1) * size

	dataSQL := "SELECT " + strainColumns + " FROM strains WHERE " + cond +
		" ORDER BY " + orderClause(q.SortBy, q.SortDesc) + " LIMIT ? OFFSET ?"
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Strain, 0, limit)
	for rows.Next() {
		s, err := scanStrain(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID fetches a strain by id.  With includeDeleted false, soft-deleted
// rows are reported as ErrStrainNotFound; restore passes true because it
// needs the deleted row.
func (r *StrainRepo) GetByID(ctx context.Context, id uint64, includeDeleted bool) (*model.Strain, error) {
	q := "SELECT " + strainColumns + " FROM strains WHERE id = ?"
	if !includeDeleted {
		q += " AND deleted_at IS NULL"
	}
	return scanStrain(r.db.QueryRowContext(ctx, q, id).Scan)
}

// Insert creates a strain and its audit event in one transaction.  On
// success the strain's ID and server-stamped timestamps are populated from a
// follow-up SELECT.  Duplicate strain codes map to ErrStrainCodeExists; the
// unique index over non-deleted codes is what actually closes the race
// between concurrent inserts.
func (r *StrainRepo) Insert(ctx context.Context, s *model.Strain, ev model.AuditEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO strains (
			strain_code, microorganism_type, genus, species, sample_type, origin_location,
			isolation_date, characteristics_macroscopic, characteristics_microscopic,
			characteristics_biochemical, potential_nitrogen_fixer, potential_phosphate_solubilizer,
			potential_proteolytic, potential_lipolytic, potential_amylolytic, potential_cellulolytic,
			potential_antimicrobial, potential_iaa_hormone, storage_location, storage_technique,
			culture_stock, biosafety_level, created_by
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.StrainCode, s.MicroorganismType, s.Genus, s.Species, s.SampleType, s.OriginLocation,
		s.IsolationDate, s.CharacteristicsMacroscopic, s.CharacteristicsMicroscopic,
		s.CharacteristicsBiochemical, s.PotentialNitrogenFixer, s.PotentialPhosphateSolubilizer,
		s.PotentialProteolytic, s.PotentialLipolytic, s.PotentialAmylolytic, s.PotentialCellulolytic,
		s.PotentialAntimicrobial, s.PotentialIAAHormone, s.StorageLocation, s.StorageTechnique,
		s.CultureStock, s.BiosafetyLevel, s.CreatedBy)
	if err != nil {
		if isDuplicate(err) {
			err = ErrStrainCodeExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)

	// Follow-up SELECT to populate server-stamped fields.
	var full *model.Strain
	full, err = scanStrain(tx.QueryRowContext(ctx,
		"SELECT "+strainColumns+" FROM strains WHERE id = ?", s.ID).Scan)
	if err != nil {
		return err
	}
	*s = *full

	ev.ResourceID = s.ID
	if err = r.audit.Insert(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// Update applies the non-nil fields of upd to an active strain, stamps
// updated_at, and writes the audit event in the same transaction.  The
// updated row is returned.
func (r *StrainRepo) Update(ctx context.Context, id uint64, upd StrainUpdate, ev model.AuditEvent) (*model.Strain, error) {
	cols, args := upd.setClauses()
	if len(cols) == 0 {
		return nil, errors.New("no fields to update")
	}
	cols = append(cols, "updated_at = NOW()")
	args = append(args, id)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		"UPDATE strains SET "+strings.Join(cols, ", ")+" WHERE id = ? AND deleted_at IS NULL", args...)
	if err != nil {
		if isDuplicate(err) {
			err = ErrStrainCodeExists
		}
		return nil, err
	}

	var s *model.Strain
	s, err = scanStrain(tx.QueryRowContext(ctx,
		"SELECT "+strainColumns+" FROM strains WHERE id = ? AND deleted_at IS NULL", id).Scan)
	if err != nil {
		return nil, err
	}

	if err = r.audit.Insert(ctx, tx, ev); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetDeleted toggles the soft-delete state and records the audit event in
// the same transaction.  Deleting requires an active row and restoring a
// deleted one; zero affected rows means the record changed state under us
// and maps to ErrStrainNotFound.
func (r *StrainRepo) SetDeleted(ctx context.Context, id uint64, deleted bool, ev model.AuditEvent) error {
	q := "UPDATE strains SET deleted_at = NOW() WHERE id = ? AND deleted_at IS NULL"
	if !deleted {
		q = "UPDATE strains SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		// Restoring collides with the unique index when the code was reused
		// by a newer active strain.
		if isDuplicate(err) {
			err = ErrStrainCodeExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrStrainNotFound
		return err
	}

	if err = r.audit.Insert(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}
