package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/ivscan/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntryJSON(t *testing.T) {
	Convey("Given a report row", t, func() {
		entry := types.Entry{
			Rank:         1,
			Seq:          4,
			EvaluationID: "0b6f",
			SpeciesID:    25,
			Species:      "Pikachu",
			CP:           302,
			HP:           55,
			Level:        20.5,
			Candidates:   12,
			MinIV:        60,
			MaxIV:        71.11,
		}

		Convey("When it is encoded for the CLI", func() {
			b, err := json.Marshal(entry)
			So(err, ShouldBeNil)

			var fields map[string]any
			So(json.Unmarshal(b, &fields), ShouldBeNil)

			Convey("Then it uses snake_case keys", func() {
				So(fields, ShouldContainKey, "evaluation_id")
				So(fields, ShouldContainKey, "species_id")
				So(fields, ShouldContainKey, "min_iv")
				So(fields, ShouldContainKey, "max_iv")
				So(fields["species"], ShouldEqual, "Pikachu")
				So(fields["level"], ShouldEqual, 20.5)
			})
		})
	})
}
