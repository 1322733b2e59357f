package model

import "time"

// Strain represents a row in the `strains` table.  Classification and
// characteristic fields come straight from the registry form; the potential
// flags are a fixed set of booleans describing metabolic capabilities.
type Strain struct {
	ID                uint64  `json:"id"`
	StrainCode        string  `json:"strain_code"`
	MicroorganismType string  `json:"microorganism_type"`
	Genus             string  `json:"genus"`
	Species           string  `json:"species"`
	SampleType        string  `json:"sample_type"`
	OriginLocation    string  `json:"origin_location"`
	IsolationDate     *string `json:"isolation_date"` // YYYY-MM-DD, optional

	CharacteristicsMacroscopic *string `json:"characteristics_macroscopic"`
	CharacteristicsMicroscopic *string `json:"characteristics_microscopic"`
	CharacteristicsBiochemical *string `json:"characteristics_biochemical"`

	PotentialNitrogenFixer        bool `json:"potential_nitrogen_fixer"`
	PotentialPhosphateSolubilizer bool `json:"potential_phosphate_solubilizer"`
	PotentialProteolytic          bool `json:"potential_proteolytic"`
	PotentialLipolytic            bool `json:"potential_lipolytic"`
	PotentialAmylolytic           bool `json:"potential_amylolytic"`
	PotentialCellulolytic         bool `json:"potential_cellulolytic"`
	PotentialAntimicrobial        bool `json:"potential_antimicrobial"`
	PotentialIAAHormone           bool `json:"potential_iaa_hormone"`

	StorageLocation  *string `json:"storage_location"`
	StorageTechnique *string `json:"storage_technique"`
	CultureStock     *string `json:"culture_stock"`

	BiosafetyLevel int        `json:"biosafety_level"`
	CreatedBy      uint64     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the strain has been soft-deleted.
func (s *Strain) Deleted() bool { return s.DeletedAt != nil }
