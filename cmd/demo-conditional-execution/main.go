// Command demo-conditional-execution runs a handful of literal flows
// through the real interpreter, exercising arithmetic dataflow, branch-based
// conditional routing, and for_each iteration exactly as scripted end to end.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/driver"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/updates"
)

func main() {
	fmt.Println("=================================================")
	fmt.Println("Conditional Execution Demo")
	fmt.Println("=================================================")
	fmt.Println()

	demoAddThenSquare()
	demoAgeBasedRouting(25)
	demoAgeBasedRouting(15)
	demoForEachSquares()
}

func run(name string, payload map[string]interface{}) {
	fmt.Printf("📋 %s\n", name)
	fmt.Println("----------------------------------")

	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal flow: %v\n", err)
		return
	}

	d := driver.New(driver.Builder{})
	result, err := d.RunScript(context.Background(), body, updates.NewConsoleObserver())
	if err != nil {
		fmt.Printf("run failed: %v\n\n", err)
		return
	}

	encoded, _ := json.MarshalIndent(result, "", "  ")
	fmt.Printf("final environment: %s\n\n", encoded)
}

// demoAddThenSquare mirrors spec §8 scenario 1: node "1" computes 1+2, node
// "2" squares node "1"'s result via an arg edge, expecting {"1":3,"2":9}.
// The exec edge (e-out -> e-in) is what actually drives evaluate() from "1"
// to "2"; a bare "next_function" field in the JSON would be discarded the
// first time Index.GetNode derives it from the edge set instead.
func demoAddThenSquare() {
	run("Add-then-square", map[string]interface{}{
		"start_id": "1",
		"nodes": []map[string]interface{}{
			{"id": "1", "function": "operator.add", "args": []interface{}{1, 2}},
			{"id": "2", "function": "operator.pow", "args": []interface{}{nil, 2}},
		},
		"edges": []map[string]interface{}{
			{"source": "1", "target": "2", "sourceHandle": "e-out", "targetHandle": "e-in"},
			{"source": "1", "target": "2", "targetHandle": 0},
		},
	})
}

// demoAgeBasedRouting routes to an "adult" or "minor" node by branching on
// whether age is at least 18, mirroring spec §8 scenario 2.
func demoAgeBasedRouting(age float64) {
	run(fmt.Sprintf("Age-based routing (age=%.0f)", age), map[string]interface{}{
		"start_id": "check",
		"nodes": []map[string]interface{}{
			{"id": "check", "function": "expr.test", "args": []interface{}{"item >= 18", age}},
			{"id": "route", "function": "branch", "args": []interface{}{nil, "adult", "minor"}},
			{"id": "adult", "function": "set_variable", "args": []interface{}{"profile", "adult-profile-api"}},
			{"id": "minor", "function": "set_variable", "args": []interface{}{"profile", "education-api"}},
		},
		"edges": []map[string]interface{}{
			{"source": "check", "target": "route", "sourceHandle": "e-out", "targetHandle": "e-in"},
			{"source": "check", "target": "route", "targetHandle": 0},
		},
	})
}

// demoForEachSquares mirrors spec §8 scenario 3: iterating [1,2,3], each
// iteration triples the item into "triple" and writes a "test" flag via
// set_variable. Neither "triple" nor "test" existed as a global before the
// loop started, so both stay bucketed per iteration under "loop__0",
// "loop__1", "loop__2" rather than surfacing as top-level keys — the final
// environment has no top-level "test", matching Process.for_each's
// global_variable_keys snapshot, which is fixed before the loop runs and
// never grows to admit keys first written inside the body.
func demoForEachSquares() {
	run("For-each squares", map[string]interface{}{
		"start_id": "loop",
		"nodes": []map[string]interface{}{
			{"id": "loop", "function": "for_each", "args": []interface{}{[]interface{}{1, 2, 3}, "body"}},
			{"id": "triple", "function": "operator.mul", "args": []interface{}{nil, 3}},
			{"id": "flag", "function": "set_variable", "args": []interface{}{"test", "success"}},
			{"id": "body", "function": "sequence", "args": []interface{}{[]interface{}{"triple", "flag"}}},
		},
		"edges": []map[string]interface{}{
			{"source": "loop", "target": "triple", "sourceHandle": "loop", "targetHandle": 0},
		},
	})
}
