package emr

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Entity identifiers are content hashes of the entity's key fields, so
// converting the same input again yields byte-identical IDs and
// downstream stores can upsert instead of growing duplicates. Key
// fields are lowercased to match deduplication's view of identity.

func PatientID(sourceID string) string {
	return entityID("pat", sourceID)
}

func EncounterID(patientID, diagnosisDate, practitionerID string) string {
	return entityID("enc", patientID, diagnosisDate, practitionerID)
}

func ConditionID(patientID, tm2Code, diagnosisDate, practitionerID string) string {
	return entityID("cond", patientID, tm2Code, diagnosisDate, practitionerID)
}

func ObservationID(patientID, tm2Code, diagnosisDate, practitionerID string) string {
	return entityID("obs", patientID, tm2Code, diagnosisDate, practitionerID)
}

func entityID(kind string, parts ...string) string {
	joined := kind + "|" + strings.ToLower(strings.Join(parts, "|"))
	hash := sha256.Sum256([]byte(joined))
	return kind + "_" + hex.EncodeToString(hash[:8])
}
