package domain

import "time"

// Hotspot is a named birding location with an observed species pool.
type Hotspot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Species is a catalog entry. ID is unique per catalog; CommonName is the answer key.
type Species struct {
	ID         string `json:"id"`
	CommonName string `json:"commonName"`
}

// SpeciesDetail carries the media for one question. It is fetched lazily and
// never changes while the question is open.
type SpeciesDetail struct {
	SpeciesID      string `json:"speciesId"`
	RecordingURL   string `json:"recordingUrl"`
	SpectrogramURL string `json:"spectrogramUrl"`
}

// QuizConfiguration is fixed once the species pool has been listed.
type QuizConfiguration struct {
	HotspotID      string `json:"hotspotId"`
	RequestedCount int    `json:"requestedCount"`
	QuestionCount  int    `json:"questionCount"`
}

// View names the screen a client should render for a snapshot.
type View string

const (
	ViewLoading   View = "loading"
	ViewQuestion  View = "question"
	ViewCorrect   View = "correct"
	ViewIncorrect View = "incorrect"
	ViewResult    View = "result"
)

// QuestionView is the unanswered question as shown to the player. The target
// species is not part of it.
type QuestionView struct {
	Index          int       `json:"index"`
	RecordingURL   string    `json:"recordingUrl"`
	SpectrogramURL string    `json:"spectrogramUrl"`
	Choices        []Species `json:"choices"`
}

// Reveal describes the outcome of the last submitted answer.
type Reveal struct {
	Index          int     `json:"index"`
	Species        Species `json:"species"`
	Answer         string  `json:"answer"`
	Correct        bool    `json:"correct"`
	RecordingURL   string  `json:"recordingUrl"`
	SpectrogramURL string  `json:"spectrogramUrl"`
}

// Summary is the final tally of a session.
type Summary struct {
	Score            int      `json:"score"`
	TotalAnswered    int      `json:"totalAnswered"`
	AccuracyPercent  *float64 `json:"accuracyPercent"` // nil when nothing was answered
	Tier             string   `json:"tier"`
	CorrectSpecies   []string `json:"correctSpecies"`
	IncorrectSpecies []string `json:"incorrectSpecies"`
}

// Snapshot is a point-in-time copy of a session, safe to hand to clients.
type Snapshot struct {
	SessionID        string        `json:"sessionId"`
	HotspotID        string        `json:"hotspotId"`
	State            string        `json:"state"`
	View             View          `json:"view"`
	Index            int           `json:"index"`
	QuestionCount    int           `json:"questionCount"`
	Remaining        int           `json:"remaining"`
	ProgressPercent  float64       `json:"progressPercent"`
	Score            int           `json:"score"`
	Skipped          int           `json:"skipped"`
	CorrectSpecies   []string      `json:"correctSpecies"`
	IncorrectSpecies []string      `json:"incorrectSpecies"`
	Question         *QuestionView `json:"question,omitempty"`
	Reveal           *Reveal       `json:"reveal,omitempty"`
	Summary          *Summary      `json:"summary,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Description is best-effort encyclopedia text for a species.
type Description struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	SourceURL string `json:"sourceUrl,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Found     bool   `json:"found"`
}
