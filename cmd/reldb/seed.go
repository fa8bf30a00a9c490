package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"coredb/engine"
)

func newSeedCmd(root *RootCommand) *cobra.Command {
	var database string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "create a sample database with a few tables and rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := root.newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()
			return seedDatabase(eng, database)
		},
	}
	cmd.Flags().StringVar(&database, "database", "demo", "name of the sample database to create")
	return cmd
}

// seedDatabase creates database, three related tables (no foreign key
// constraint is declared), a secondary index, and a few rows, then runs a couple of SELECTs to show
// the engine working end to end.
func seedDatabase(eng *engine.StorageEngine, database string) error {
	sess := uuid.New()
	run := func(sql string) {
		result, err := eng.ExecuteSQL(sess, sql)
		if err != nil {
			fmt.Printf("  %-70s -> error: %v\n", sql, err)
			return
		}
		fmt.Printf("  %-70s -> %s\n", sql, result.Message)
	}
	query := func(sql string) {
		result, err := eng.ExecuteSQL(sess, sql)
		if err != nil {
			fmt.Printf("  %s -> error: %v\n", sql, err)
			return
		}
		for _, row := range result.Rows {
			fmt.Println("   ", formatTuple(row))
		}
		fmt.Printf("  (%d rows)\n", len(result.Rows))
	}

	fmt.Printf("creating database %q\n", database)
	run(fmt.Sprintf("CREATE DATABASE %s", database))
	run(fmt.Sprintf("USE %s", database))

	run(`CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50) NOT NULL, age INT)`)
	run(`CREATE TABLE courses (code VARCHAR(10) PRIMARY KEY, title VARCHAR(100))`)
	run(`CREATE TABLE grades (id INT PRIMARY KEY, student_id INT, course_code VARCHAR(10), grade VARCHAR(2))`)
	run(`CREATE INDEX idx_grades_student ON grades (student_id)`)

	run(`INSERT INTO students VALUES (1, 'Alice', 20)`)
	run(`INSERT INTO students VALUES (2, 'Bob', 21)`)
	run(`INSERT INTO students VALUES (3, 'Carol', 19)`)

	run(`INSERT INTO courses VALUES ('CS101', 'Intro to CS')`)
	run(`INSERT INTO courses VALUES ('CS102', 'Data Structures')`)

	run(`INSERT INTO grades VALUES (1, 1, 'CS101', 'A')`)
	run(`INSERT INTO grades VALUES (2, 2, 'CS102', 'B')`)
	run(`INSERT INTO grades VALUES (3, 1, 'CS102', 'A')`)

	fmt.Println("\n--- SELECT * FROM students ---")
	query("SELECT * FROM students")

	fmt.Println("\n--- SELECT * FROM grades WHERE student_id = 1 ---")
	query("SELECT * FROM grades WHERE student_id = 1")

	return nil
}
