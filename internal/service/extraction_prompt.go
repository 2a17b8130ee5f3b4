package service

// marksheetPrompt asks the model for a bare JSON array, one object per
// student visible on the sheet.
const marksheetPrompt = `You are reading a photographed academic marksheet.

Return every student on the sheet as a JSON array. Each element must look like:
{
  "roll_number": "294343",
  "name": "KHEL KUMAR",
  "father_name": "SHRI TIJ RAM",
  "mother_name": "SMT. INDER BAI",
  "enrollment_number": "SHRI21S0370",
  "subjects": [
    {
      "code": "01",
      "name": "PC HINDI LANGUAGE",
      "theory_ese": 24,
      "theory_internal": null,
      "practical": null,
      "practical_internal": null
    }
  ],
  "percentage": 62.66,
  "result": "PASS FIRST"
}

Rules:
- Include every student and every subject row printed for that student.
- Scores are whole numbers between 0 and 100. Use null for a score that is blank, "...", or not printed.
- Use an empty string for a name or number that is not printed.
- Copy subject codes exactly as printed, keeping leading zeros.
- Respond with the JSON array only. No commentary and no markdown.`
