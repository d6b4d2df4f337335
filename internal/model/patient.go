package model

import (
	"time"

	"github.com/google/uuid"
)

type AllergyType string

const (
	AllergyTypeDrug        AllergyType = "drug"
	AllergyTypeFood        AllergyType = "food"
	AllergyTypeEnvironment AllergyType = "environment"
)

type ReactionSeverity string

const (
	ReactionMild     ReactionSeverity = "mild"
	ReactionModerate ReactionSeverity = "moderate"
	ReactionSevere   ReactionSeverity = "severe"
)

// Patient is the stored patient record.
type Patient struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	MedicalRecordNumber string    `db:"medical_record_number" json:"medical_record_number,omitempty"`
	DateOfBirth         time.Time `db:"date_of_birth" json:"date_of_birth"`
	AgeYears            int       `db:"age_years" json:"age_years"`
	IsPregnant          bool      `db:"is_pregnant" json:"is_pregnant"`
	IsNursing           bool      `db:"is_nursing" json:"is_nursing"`
	EGFR                *float64  `db:"egfr" json:"egfr,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// DrugHistory is one entry in a patient's medication history.
type DrugHistory struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	DrugName  string    `db:"drug_name" json:"drug_name"`
	Dose      string    `db:"dose" json:"dose"`
	Frequency string    `db:"frequency" json:"frequency"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Allergy is one entry in a patient's allergy registry.
type Allergy struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	PatientID uuid.UUID        `db:"patient_id" json:"patient_id"`
	Allergen  string           `db:"allergen" json:"allergen"`
	Type      AllergyType      `db:"allergy_type" json:"allergy_type"`
	Severity  ReactionSeverity `db:"severity" json:"severity"`
	Symptoms  string           `db:"symptoms" json:"symptoms,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// AdverseReaction records a reaction the patient previously had to a drug.
type AdverseReaction struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	PatientID uuid.UUID        `db:"patient_id" json:"patient_id"`
	DrugName  string           `db:"drug_name" json:"drug_name"`
	Severity  ReactionSeverity `db:"severity" json:"severity"`
	Symptoms  string           `db:"symptoms" json:"symptoms"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// SnapshotDrug is one active medication inside a snapshot.
type SnapshotDrug struct {
	DrugName  string `json:"drug_name"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
}

// SnapshotAllergy is one allergy entry inside a snapshot.
type SnapshotAllergy struct {
	Allergen string           `json:"allergen"`
	Type     AllergyType      `json:"type"`
	Severity ReactionSeverity `json:"severity"`
}

// SnapshotReaction is one adverse-reaction entry inside a snapshot.
type SnapshotReaction struct {
	DrugName string           `json:"drug_name"`
	Symptoms string           `json:"symptoms"`
	Severity ReactionSeverity `json:"severity"`
}

// PatientSnapshot is the immutable, point-in-time view of one patient used
// for a single workflow run. CurrentDrugs holds active medications only.
// Safety checks read it; nothing mutates it after load.
type PatientSnapshot struct {
	ID               uuid.UUID          `json:"id"`
	Name             string             `json:"name"`
	AgeYears         int                `json:"age_years"`
	IsPregnant       bool               `json:"is_pregnant"`
	IsNursing        bool               `json:"is_nursing"`
	EGFR             *float64           `json:"egfr,omitempty"`
	CurrentDrugs     []SnapshotDrug     `json:"current_drugs"`
	Allergies        []SnapshotAllergy  `json:"allergies"`
	AdverseReactions []SnapshotReaction `json:"adverse_reactions"`
	LoadedAt         time.Time          `json:"loaded_at"`
}

// CreatePatientRequest is the API payload for registering a patient.
type CreatePatientRequest struct {
	Name                string    `json:"name" binding:"required"`
	MedicalRecordNumber string    `json:"medical_record_number"`
	DateOfBirth         time.Time `json:"date_of_birth" binding:"required"`
	AgeYears            int       `json:"age_years" binding:"gte=0,lte=150"`
	IsPregnant          bool      `json:"is_pregnant"`
	IsNursing           bool      `json:"is_nursing"`
	EGFR                *float64  `json:"egfr" binding:"omitempty,gte=0"`
}

// AddDrugHistoryRequest is the API payload for a medication-history entry.
type AddDrugHistoryRequest struct {
	DrugName  string `json:"drug_name" binding:"required"`
	Dose      string `json:"dose" binding:"required"`
	Frequency string `json:"frequency" binding:"required"`
	IsActive  bool   `json:"is_active"`
	Notes     string `json:"notes"`
}

// AddAllergyRequest is the API payload for an allergy-registry entry.
type AddAllergyRequest struct {
	Allergen string           `json:"allergen" binding:"required"`
	Type     AllergyType      `json:"allergy_type" binding:"required"`
	Severity ReactionSeverity `json:"severity" binding:"required"`
	Symptoms string           `json:"symptoms"`
}

// AddAdverseReactionRequest is the API payload for an adverse reaction.
type AddAdverseReactionRequest struct {
	DrugName string           `json:"drug_name" binding:"required"`
	Severity ReactionSeverity `json:"severity" binding:"required"`
	Symptoms string           `json:"symptoms" binding:"required"`
}
