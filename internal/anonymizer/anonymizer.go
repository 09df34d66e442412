// Package anonymizer replaces pm_model/account_id on a set of pitches
// with stable "Pitch A/B/C..." labels for the Peer-Review stage, and
// reverses that mapping once review scores return. The mapping never
// leaves this package's return value — callers own its lifetime, it
// is not retained globally.
package anonymizer

import "github.com/llmcouncil/macrotrader/pkg/council"

// Mapping is a bijection between stable labels and the pitch_ids they
// stand in for, built over pitches ordered by pitch_id ascending.
type Mapping struct {
	labelToPitchID map[string]string
	pitchIDToLabel map[string]string
}

// Anonymize sorts pitches by pitch_id ascending, assigns each one a
// stable "Pitch <L>" label, and returns both the anonymized pitches
// (pm_model/account_id stripped) and the Mapping needed to reverse it.
func Anonymize(pitches []council.PMPitch) ([]council.AnonymizedPitch, *Mapping) {
	sorted := council.SortPitchesByID(pitches)
	labels := council.AnonymizeLabels(len(sorted))

	m := &Mapping{
		labelToPitchID: make(map[string]string, len(sorted)),
		pitchIDToLabel: make(map[string]string, len(sorted)),
	}

	out := make([]council.AnonymizedPitch, len(sorted))
	for i, p := range sorted {
		m.labelToPitchID[labels[i]] = p.PitchID
		m.pitchIDToLabel[p.PitchID] = labels[i]
		out[i] = council.AnonymizedPitch{
			Label:         labels[i],
			PitchID:       p.PitchID,
			Instrument:    p.Instrument,
			Direction:     p.Direction,
			Horizon:       p.Horizon,
			Conviction:    p.Conviction,
			ThesisBullets: p.ThesisBullets,
			RiskProfile:   p.RiskProfile,
			EntryPolicy:   p.EntryPolicy,
			ExitPolicy:    p.ExitPolicy,
			RiskNotes:     p.RiskNotes,
		}
	}
	return out, m
}

// PitchIDFor resolves a label back to the pitch_id it stands for. The
// second return value is false if the label is unknown.
func (m *Mapping) PitchIDFor(label string) (string, bool) {
	id, ok := m.labelToPitchID[label]
	return id, ok
}

// LabelFor resolves a pitch_id forward to its stable label. The
// second return value is false if the pitch_id is unknown.
func (m *Mapping) LabelFor(pitchID string) (string, bool) {
	label, ok := m.pitchIDToLabel[pitchID]
	return label, ok
}

// Labels returns every label in the mapping, in no particular order.
func (m *Mapping) Labels() []string {
	out := make([]string, 0, len(m.labelToPitchID))
	for l := range m.labelToPitchID {
		out = append(out, l)
	}
	return out
}

// Size returns the number of pitches in the mapping.
func (m *Mapping) Size() int { return len(m.labelToPitchID) }
