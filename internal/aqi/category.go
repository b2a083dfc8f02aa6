package aqi

// Category is one of the six ordered AQI severity labels.
type Category string

const (
	CategoryGood          Category = "Good"
	CategoryModerate      Category = "Moderate"
	CategorySensitive     Category = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy     Category = "Unhealthy"
	CategoryVeryUnhealthy Category = "Very Unhealthy"
	CategoryHazardous     Category = "Hazardous"
)

type categoryBand struct {
	max      int
	name     Category
	advisory string
}

// Bands are checked in order; the mapping is monotonic non-decreasing in AQI.
var categoryBands = []categoryBand{
	{50, CategoryGood, "Air quality is good. Ideal for outdoor activities."},
	{100, CategoryModerate, "Air quality is acceptable for most people."},
	{150, CategorySensitive, "Sensitive groups may experience minor issues."},
	{200, CategoryUnhealthy, "Everyone may experience health effects."},
	{300, CategoryVeryUnhealthy, "Health alert: everyone may experience serious effects."},
	{MaxAQI, CategoryHazardous, "Health warning: emergency conditions affect everyone."},
}

// CategoryFor maps an AQI value onto its severity category. Values above
// MaxAQI fold into Hazardous.
func CategoryFor(aqi int) Category {
	for _, b := range categoryBands {
		if aqi <= b.max {
			return b.name
		}
	}
	return CategoryHazardous
}

// Advisory returns the health guidance text for the category.
func (c Category) Advisory() string {
	for _, b := range categoryBands {
		if b.name == c {
			return b.advisory
		}
	}
	return ""
}
