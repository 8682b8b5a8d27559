package ride

import "testing"

func TestSeatsLeft(t *testing.T) {
	r := Ride{DriverPersonID: "anchor", SeatsAvailable: 3}

	tests := []struct {
		name       string
		passengers []Passenger
		want       int
	}{
		{name: "anchor only", passengers: []Passenger{{PersonID: "anchor", SeatCount: 1}}, want: 3},
		{
			name: "rider with accompanying adult",
			passengers: []Passenger{
				{PersonID: "anchor", SeatCount: 1},
				{PersonID: "p2", SeatCount: 2},
			},
			want: 1,
		},
		{
			name: "full",
			passengers: []Passenger{
				{PersonID: "anchor", SeatCount: 1},
				{PersonID: "p2", SeatCount: 2},
				{PersonID: "p3", SeatCount: 1},
			},
			want: 0,
		},
		{
			name: "overbooked clamps to zero",
			passengers: []Passenger{
				{PersonID: "p2", SeatCount: 2},
				{PersonID: "p3", SeatCount: 2},
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeatsLeft(r, tt.passengers); got != tt.want {
				t.Errorf("SeatsLeft() = %d, want %d", got, tt.want)
			}
		})
	}
}
