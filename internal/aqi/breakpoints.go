package aqi

// segment maps a concentration range onto an AQI sub-range. Tables are
// ordered ascending by cLow so lookup can binary-search on the lower bound.
type segment struct {
	cLow, cHigh    float64
	aqiLow, aqiHigh int
}

// table holds the breakpoint segments for one pollutant. convert rescales the
// raw µg/m³ input into the unit the segments are defined in (ppb or ppm for
// the gaseous pollutants, 1.0 for particulates).
type table struct {
	convert  float64
	segments []segment
}

// US EPA PM2.5 breakpoints (µg/m³, 24-hour).
var pm25Table = table{
	convert: 1,
	segments: []segment{
		{0.0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 350.4, 301, 400},
		{350.5, 500.4, 401, 500},
	},
}

// US EPA PM10 breakpoints (µg/m³, 24-hour).
var pm10Table = table{
	convert: 1,
	segments: []segment{
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
		{255, 354, 151, 200},
		{355, 424, 201, 300},
		{425, 504, 301, 400},
		{505, 604, 401, 500},
	},
}

// NO2 breakpoints in ppb; inputs arrive in µg/m³ (factor 0.53).
var no2Table = table{
	convert: 0.53,
	segments: []segment{
		{0, 53, 0, 50},
		{53, 100, 50, 100},
		{100, 360, 100, 150},
		{360, 649, 150, 200},
		{649, 1249, 200, 300},
		{1249, 2049, 300, 400},
	},
}

// SO2 breakpoints in ppb (factor 0.38).
var so2Table = table{
	convert: 0.38,
	segments: []segment{
		{0, 35, 0, 50},
		{35, 75, 50, 100},
		{75, 185, 100, 150},
		{185, 304, 150, 200},
		{304, 604, 200, 300},
		{604, 1004, 300, 400},
	},
}

// CO breakpoints in ppm (factor 0.87).
var coTable = table{
	convert: 0.87,
	segments: []segment{
		{0, 4.4, 0, 50},
		{4.4, 9.4, 50, 100},
		{9.4, 12.4, 100, 150},
		{12.4, 15.4, 150, 200},
		{15.4, 30.4, 200, 300},
		{30.4, 40.4, 300, 400},
	},
}

// O3 breakpoints in ppb (factor 0.51).
var o3Table = table{
	convert: 0.51,
	segments: []segment{
		{0, 54, 0, 50},
		{54, 70, 50, 100},
		{70, 85, 100, 150},
		{85, 105, 150, 200},
		{105, 200, 200, 300},
		{200, 300, 300, 400},
	},
}

var tables = map[Pollutant]table{
	PM25: pm25Table,
	PM10: pm10Table,
	NO2:  no2Table,
	SO2:  so2Table,
	CO:   coTable,
	O3:   o3Table,
}
