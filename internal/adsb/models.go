package adsb

// Snapshot is one aircraft.json document from dump1090-mutability, tar1090 or
// readsb
type Snapshot struct {
	Now      float64      `json:"now"`
	Messages int          `json:"messages"`
	Aircraft []ADSBTarget `json:"aircraft"`
}

// ADSBTarget is a single aircraft entry of a Snapshot. Altitudes are feet,
// speeds knots and rates feet per minute.
type ADSBTarget struct {
	Hex         string        `json:"hex"`
	Flight      string        `json:"flight"`
	Squawk      string        `json:"squawk"`
	AltBaro     FlexibleField `json:"alt_baro"` // Number or "ground"
	Altitude    FlexibleField `json:"altitude"` // Older mutability builds
	NavAltitude FlexibleField `json:"nav_altitude"`
	GS          FlexibleField `json:"gs"`
	Speed       FlexibleField `json:"speed"`
	Track       FlexibleField `json:"track"`
	BaroRate    FlexibleField `json:"baro_rate"`
	VertRate    FlexibleField `json:"vert_rate"`
	Lat         FlexibleField `json:"lat"`
	Lon         FlexibleField `json:"lon"`
	Seen        FlexibleField `json:"seen"`
	SeenPos     FlexibleField `json:"seen_pos"`
	MLAT        []string      `json:"mlat"`
	Messages    int           `json:"messages"`
	RSSI        float64       `json:"rssi"`
	OnGround    *bool         `json:"on_ground,omitempty"` // Explicit ground status, when the source has one
}

// LegacyTarget is an entry of the flat data.json array served by the original
// dump1090 and its early forks
type LegacyTarget struct {
	Hex           string        `json:"hex"`
	Squawk        string        `json:"squawk"`
	Flight        string        `json:"flight"`
	Lat           FlexibleField `json:"lat"`
	Lon           FlexibleField `json:"lon"`
	ValidPosition *int          `json:"validposition"`
	Altitude      FlexibleField `json:"altitude"`
	VertRate      FlexibleField `json:"vert_rate"`
	Track         FlexibleField `json:"track"`
	ValidTrack    *int          `json:"validtrack"`
	Speed         FlexibleField `json:"speed"`
	Messages      int           `json:"messages"`
	Seen          FlexibleField `json:"seen"`
}

// VRSResponse is a Virtual Radar Server AircraftList.json document, as served
// live or stored in the daily archives
type VRSResponse struct {
	AcList []VRSTarget `json:"acList"`
}

// VRSTarget is an aircraft of a VRS document
type VRSTarget struct {
	PosTime FlexibleField `json:"PosTime"` // Milliseconds since the epoch
	Icao    string        `json:"Icao"`
	Alt     FlexibleField `json:"Alt"`
	Spd     FlexibleField `json:"Spd"`
	Sqk     FlexibleField `json:"Sqk"`
	Trak    FlexibleField `json:"Trak"`
	Long    FlexibleField `json:"Long"`
	Lat     FlexibleField `json:"Lat"`
	Gnd     FlexibleField `json:"Gnd"`
	CMsgs   FlexibleField `json:"CMsgs"`
	Mlat    FlexibleField `json:"Mlat"`
	Call    string        `json:"Call"`
	Vsi     FlexibleField `json:"Vsi"`

	// Archive trails: TT says whether the fourth value of each Cos quad is an
	// altitude ("a") or a speed ("s")
	TT  string    `json:"TT"`
	Cos []float64 `json:"Cos"`
}
