package analyzer

import "strings"

const systemPrompt = "You are an expert SQL table lineage analyzer. " +
	"Analyze the given SQL statement and extract source tables (FROM) and target tables (INSERT/UPDATE/MERGE destination) accurately, then return as JSON. " +
	"MUST extract only exact table names explicitly written in the SQL - NO guessing, NO abbreviation. " +
	"Aliases, CTE names, and subqueries are NOT table names."

const userPromptHeader = `Analyze the following SQL and return table lineage as JSON.

Response format:
{"lineages":[
  {"sourceTable":"SOURCE_TABLE_NAME", "targetTable":"TARGET_TABLE_NAME"},
  ...
]}

CRITICAL RULES:
1) Identify target tables accurately: INSERT/UPDATE/MERGE/CREATE TABLE AS SELECT
2) Extract ONLY actual table names from FROM/JOIN clauses:
   - Aliases are NOT table names (e.g., FROM table_name t ← exclude 't', extract 'table_name')
   - CTEs (WITH clause) are NOT table names
   - Subqueries are NOT table names
3) Remove schema names, use only table names (e.g., SCHEMA.TABLE → TABLE)
4) Exclude DUAL table
5) **Extract EXACT table names ONLY**: Do NOT create non-existent table names
   - Example: If MMAP_COMM_CD_DTL_C exists → MMAP_COMM_CD_DTL_C (exact)
   - Example: If MMAP_COMM_CD_D does NOT exist in SQL → Do NOT extract it
   - Do NOT abbreviate or guess table names
6) Create separate entries for multiple source tables
7) Remove duplicates
8) If only SELECT without INSERT/UPDATE, return empty array: {"lineages":[]}
9) Output ONLY JSON, no code fences (` + "```" + `) or explanations

VERIFICATION:
- Double-check that ALL returned table names actually exist in the SQL below
- Verify exact spelling of table names
- Do NOT invent table names based on assumptions or guesses

[SQL]
`

// UserPrompt builds the instruction block followed by the statement.
func UserPrompt(sql string) string {
	var b strings.Builder
	b.Grow(len(userPromptHeader) + len(sql))
	b.WriteString(userPromptHeader)
	b.WriteString(sql)
	return b.String()
}

// SystemPrompt returns the classifier's system instruction.
func SystemPrompt() string { return systemPrompt }
