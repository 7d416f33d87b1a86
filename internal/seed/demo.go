package seed

// Identifiers of the built-in demo fixture.
const (
	DemoOrg      = "11111111-1111-1111-1111-111111111111"
	DemoOtherOrg = "11111111-1111-1111-1111-111111111112"

	DemoOperator         = "22222222-2222-2222-2222-222222222200"
	DemoDriver1          = "22222222-2222-2222-2222-222222222201"
	DemoDriver2          = "22222222-2222-2222-2222-222222222202"
	DemoDriverUnassigned = "22222222-2222-2222-2222-222222222203"

	DemoVehicle1      = "33333333-3333-3333-3333-333333333301"
	DemoVehicle2      = "33333333-3333-3333-3333-333333333302"
	DemoVehicle3      = "33333333-3333-3333-3333-333333333303"
	DemoOtherVehicle  = "33333333-3333-3333-3333-333333333309"
	DemoUnknownTarget = "33333333-3333-3333-3333-333333333399"

	DemoStop1        = "44444444-4444-4444-4444-444444444401"
	DemoStop2        = "44444444-4444-4444-4444-444444444402"
	DemoStop3        = "44444444-4444-4444-4444-444444444403"
	DemoStopUnrouted = "44444444-4444-4444-4444-444444444404"

	DemoRouteNorth = "55555555-5555-5555-5555-555555555501"
	DemoRouteSouth = "55555555-5555-5555-5555-555555555502"

	DemoGuardian1        = "66666666-6666-6666-6666-666666666601"
	DemoGuardian2        = "66666666-6666-6666-6666-666666666602"
	DemoGuardianNoRiders = "66666666-6666-6666-6666-666666666603"
	DemoGuardianNoStop   = "66666666-6666-6666-6666-666666666604"

	DemoRiderNorth  = "77777777-7777-7777-7777-777777777701"
	DemoRiderSouth  = "77777777-7777-7777-7777-777777777702"
	DemoRiderNorth2 = "77777777-7777-7777-7777-777777777703"
	DemoRiderNoStop = "77777777-7777-7777-7777-777777777704"
)

// DemoYAML describes two organizations. Bus 1 serves the north loop (stops 1
// and 2), buses 2 and 3 serve the south loop (stop 3). Stop 4 is on no route.
const DemoYAML = `
organizations:
  - id: 11111111-1111-1111-1111-111111111111
    vehicles:
      - id: 33333333-3333-3333-3333-333333333301
        label: Bus 1
        capacity: 40
        status: active
        operator: 22222222-2222-2222-2222-222222222201
      - id: 33333333-3333-3333-3333-333333333302
        label: Bus 2
        capacity: 30
        status: active
        operator: 22222222-2222-2222-2222-222222222202
      - id: 33333333-3333-3333-3333-333333333303
        label: Bus 3
        capacity: 20
        status: maintenance
    stops:
      - id: 44444444-4444-4444-4444-444444444401
        name: Cedar Street
        lat: 33.8938
        lon: 35.5018
      - id: 44444444-4444-4444-4444-444444444402
        name: Harbor Gate
        lat: 33.9011
        lon: 35.5124
      - id: 44444444-4444-4444-4444-444444444403
        name: Hill Road
        lat: 33.8702
        lon: 35.4899
      - id: 44444444-4444-4444-4444-444444444404
        name: Depot
        lat: 33.8800
        lon: 35.5000
    routes:
      - id: 55555555-5555-5555-5555-555555555501
        name: North loop
        stops:
          - 44444444-4444-4444-4444-444444444401
          - 44444444-4444-4444-4444-444444444402
        vehicles:
          - 33333333-3333-3333-3333-333333333301
      - id: 55555555-5555-5555-5555-555555555502
        name: South loop
        stops:
          - 44444444-4444-4444-4444-444444444403
        vehicles:
          - 33333333-3333-3333-3333-333333333302
          - 33333333-3333-3333-3333-333333333303
    guardians:
      - id: 66666666-6666-6666-6666-666666666601
        name: Rania Haddad
        riders:
          - id: 77777777-7777-7777-7777-777777777701
            name: Omar
            stop: 44444444-4444-4444-4444-444444444401
          - id: 77777777-7777-7777-7777-777777777702
            name: Lina
            stop: 44444444-4444-4444-4444-444444444403
      - id: 66666666-6666-6666-6666-666666666602
        name: Karim Nassar
        riders:
          - id: 77777777-7777-7777-7777-777777777703
            name: Maya
            stop: 44444444-4444-4444-4444-444444444402
      - id: 66666666-6666-6666-6666-666666666603
        name: Samir Khoury
      - id: 66666666-6666-6666-6666-666666666604
        name: Nour Saleh
        riders:
          - id: 77777777-7777-7777-7777-777777777704
            name: Jad
  - id: 11111111-1111-1111-1111-111111111112
    vehicles:
      - id: 33333333-3333-3333-3333-333333333309
        label: Shuttle 9
        capacity: 12
        status: active
`

func Demo() (Fixture, error) {
	return Parse([]byte(DemoYAML))
}
