package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// flexID accepts identifiers encoded either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier %s is neither string nor number", data)
	}
	*f = flexID(n.String())
	return nil
}

type hotspotPayload struct {
	ID      flexID `json:"hotspot_id"`
	LocName string `json:"locName"`
}

type birdPayload struct {
	ID      flexID `json:"bird_id"`
	ComName string `json:"comName"`
}

type speciesListPayload struct {
	Birds []birdPayload `json:"birds"`
}

type detailPayload struct {
	ID           flexID `json:"bird_id"`
	RecordingURL string `json:"recording_url"`
	Spectrogram  string `json:"spectrogram"`
}

type detailEnvelope struct {
	BirdDetail *detailPayload `json:"bird_detail"`
}
