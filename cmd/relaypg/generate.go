package relaypg

import (
	"fmt"
	"os"

	"github.com/relaypg/relaypg/schema"
)

// RunGenerate loads the model definitions and writes the generated
// GraphQL schema to a file.
func RunGenerate() error {
	modelsPath := "models.yaml"
	outputPath := "schema.graphql"

	for i, arg := range os.Args {
		switch arg {
		case "--models":
			if i+1 < len(os.Args) {
				modelsPath = os.Args[i+1]
			}
		case "--out", "-o":
			if i+1 < len(os.Args) {
				outputPath = os.Args[i+1]
			}
		}
	}

	reg, err := LoadModels(modelsPath)
	if err != nil {
		return err
	}

	sc, err := schema.Load(reg)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}

	if outputPath == "-" {
		fmt.Print(sc.SDL())
		return nil
	}

	if err := os.WriteFile(outputPath, []byte(sc.SDL()), 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	fmt.Printf("✓ Generated %s (%d models)\n", outputPath, len(reg.Models()))
	return nil
}
