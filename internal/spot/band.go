package spot

// UnknownBand is reported for frequencies outside every amateur allocation below.
const UnknownBand = "Unknown"

// BandRange is an inclusive frequency segment in kHz.
type BandRange struct {
	Name string
	Min  float64
	Max  float64
}

// Bands lists the allocations a spot frequency is matched against, lowest first.
var Bands = []BandRange{
	{"160m", 1800, 2000},
	{"80m", 3500, 4000},
	{"60m", 5250, 5450},
	{"40m", 7000, 7300},
	{"30m", 10100, 10150},
	{"20m", 14000, 14350},
	{"17m", 18068, 18168},
	{"15m", 21000, 21450},
	{"12m", 24890, 24990},
	{"10m", 28000, 29700},
	{"6m", 50000, 54000},
	{"4m", 70000, 71000},
	{"2m", 144000, 148000},
	{"1.25m", 220000, 225000},
	{"70cm", 420000, 450000},
	{"33cm", 902000, 928000},
	{"23cm", 1240000, 1300000},
}

// Band returns the band name for a frequency in kHz, or UnknownBand.
func Band(freqKHz float64) string {
	for _, b := range Bands {
		if freqKHz >= b.Min && freqKHz <= b.Max {
			return b.Name
		}
	}
	return UnknownBand
}

// IsHF reports whether a band name is one of the HF allocations.
func IsHF(band string) bool {
	switch band {
	case "160m", "80m", "60m", "40m", "30m", "20m", "17m", "15m", "12m", "10m":
		return true
	}
	return false
}
