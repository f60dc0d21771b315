// cmd/faultgen/main.go
//
// faultgen prints one diagnostic document to stdout in the format the
// command source expects:
//
//	{"faults": [{"id": "F30012", "desc": "Overcurrent", "component": "inverter"}], "alarms": []}
//
// Scripted codes come from -faults/-alarms; -random picks one of the
// built-in scenarios instead. Point a command source at it:
//
//	{"type": "command", "config": {"command": "faultgen -random"}}
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"
)

type entry struct {
	ID          string `json:"id"`
	Description string `json:"desc,omitempty"`
	Component   string `json:"component,omitempty"`
}

type document struct {
	Faults []entry `json:"faults"`
	Alarms []entry `json:"alarms"`
}

// scenarios are the canned random outcomes: a fault, an alarm, both,
// or a clean bill of health.
var scenarios = []document{
	{
		Faults: []entry{{ID: "F30012", Description: "Overcurrent", Component: "inverter"}},
		Alarms: []entry{},
	},
	{
		Faults: []entry{},
		Alarms: []entry{{ID: "A05010", Description: "Fan warning", Component: "fan"}},
	},
	{
		Faults: []entry{{ID: "F30005", Description: "Rectifier fault", Component: "rectifier"}},
		Alarms: []entry{{ID: "A05020", Description: "Temperature high", Component: "inverter"}},
	},
	{
		Faults: []entry{},
		Alarms: []entry{},
	},
}

func main() {
	faults := flag.String("faults", "", "Comma-separated fault codes, each CODE or CODE:component:description")
	alarms := flag.String("alarms", "", "Comma-separated alarm codes, each CODE or CODE:component:description")
	random := flag.Bool("random", false, "Emit a random scenario instead of scripted codes")
	seed := flag.Int64("seed", 0, "Random seed; 0 seeds from the clock")
	flag.Parse()

	doc := document{Faults: parseCodes(*faults), Alarms: parseCodes(*alarms)}

	if *random {
		s := *seed
		if s == 0 {
			s = time.Now().UnixNano()
		}

		rng := rand.New(rand.NewSource(s))
		doc = scenarios[rng.Intn(len(scenarios))]
	}

	out, err := json.Marshal(doc)
	if err != nil {
		log.Fatalf("Failed to encode diagnostics: %v", err)
	}

	fmt.Println(string(out))
}

// parseCodes splits a comma-separated code list. Each item is a bare
// code or CODE:component:description.
func parseCodes(list string) []entry {
	entries := []entry{}

	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.SplitN(item, ":", 3)
		e := entry{ID: parts[0]}

		if len(parts) > 1 {
			e.Component = parts[1]
		}

		if len(parts) > 2 {
			e.Description = parts[2]
		}

		entries = append(entries, e)
	}

	return entries
}
