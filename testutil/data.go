package testutil

// SBS-1 BaseStation lines for tests.
const (
	// PositionLine carries callsign and position for ABC123.
	PositionLine = "MSG,3,1,1,ABC123,1,2023/04/01,12:34:56.789,2023/04/01,12:34:56.789,TEST123,37000,265.2,95.3,51.5074,-0.1278,,-1234,,,0,0"

	// IdentLine carries only the callsign for 4CA2D6.
	IdentLine = "MSG,1,1,1,4CA2D6,1,2023/04/01,12:35:00.000,2023/04/01,12:35:00.000,RYR4TX  ,,,,,,,,,,,0"

	// AnonymousPositionLine is a position for 4CA2D6 without a callsign.
	AnonymousPositionLine = "MSG,3,1,1,4CA2D6,1,2023/04/01,12:35:01.000,2023/04/01,12:35:01.000,,36000,,,53.3498,-6.2603,,,0,0,0,0"

	// AirborneVelocityLine has no coordinates.
	AirborneVelocityLine = "MSG,4,1,1,ABC123,1,2023/04/01,12:35:02.000,2023/04/01,12:35:02.000,,,450.0,90.0,,,640,,,,,0"

	// StatusLine is a non-MSG record.
	StatusLine = "STA,,1,1,ABC123,1,2023/04/01,12:35:03.000,2023/04/01,12:35:03.000,RM"

	// ShortLine is truncated before the aircraft id.
	ShortLine = "MSG,3,1"
)
