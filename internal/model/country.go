package model

// Country holds metadata for a country seen in a prediction. Rows are
// created on first encounter and never refreshed.
type Country struct {
	ID                 int64  `json:"id"`
	Code               string `json:"code"`
	Name               string `json:"name"`
	CommonName         string `json:"common_name,omitempty"`
	Region             string `json:"region,omitempty"`
	Independent        bool   `json:"independent"`
	GoogleMaps         string `json:"google_maps,omitempty"`
	OpenStreetMaps     string `json:"open_street_maps,omitempty"`
	Capital            string `json:"capital,omitempty"`
	CapitalCoordinates string `json:"capital_coordinates,omitempty"`
	FlagPNG            string `json:"flag_png,omitempty"`
	FlagSVG            string `json:"flag_svg,omitempty"`
	FlagAlt            string `json:"flag_alt,omitempty"`
	CoatOfArmsPNG      string `json:"coat_of_arms_png,omitempty"`
	CoatOfArmsSVG      string `json:"coat_of_arms_svg,omitempty"`
	Borders            string `json:"borders,omitempty"`
}
