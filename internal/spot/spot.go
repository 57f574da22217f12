package spot

import "time"

// Spot is a single "station heard" announcement decoded from a cluster line.
type Spot struct {
	DXCall       string
	Spotter      string
	FrequencyKHz float64
	Band         string
	Mode         string
	Comment      string
	// SpottedAt is the HH:MM UTC time the cluster reported, or the
	// receive time when the line carried none.
	SpottedAt  string
	ReceivedAt time.Time
	SessionID  string
	// Cluster is the name of the node the spot arrived from.
	Cluster string
	Raw     string
}

// Payload is the client-facing wire form of a Spot.
type Payload struct {
	DXCall    string  `json:"dxCall"`
	Frequency float64 `json:"frequency"`
	Band      string  `json:"band"`
	Mode      string  `json:"mode"`
	Spotter   string  `json:"spotter"`
	Comment   string  `json:"comment"`
	Time      string  `json:"time"`
	Timestamp int64   `json:"timestamp"`
}

// Payload converts s to its wire form. Timestamp is receive time in epoch ms.
func (s Spot) Payload() Payload {
	return Payload{
		DXCall:    s.DXCall,
		Frequency: s.FrequencyKHz,
		Band:      s.Band,
		Mode:      s.Mode,
		Spotter:   s.Spotter,
		Comment:   s.Comment,
		Time:      s.SpottedAt,
		Timestamp: s.ReceivedAt.UnixMilli(),
	}
}
