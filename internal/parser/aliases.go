package parser

// alias maps a canonical test key to the name fragments that identify it
type alias struct {
	key       string
	fragments []string
}

// aliasTable is searched in order; the first entry with a fragment
// contained in the normalized name wins.
var aliasTable = []alias{
	{"hemoglobin", []string{"hb", "hemoglobin"}},
	{"rbc", []string{"rbc", "red blood cell"}},
	{"hct", []string{"hct", "hematocrit"}},
	{"tsh", []string{"tsh", "thyroid stimulating hormone"}},
	{"t3", []string{"t3", "triiodothyronine"}},
	{"t4", []string{"t4", "thyroxine"}},
	{"glucose_fasting", []string{"glucose fasting", "fasting glucose", "fbs", "blood sugar fasting"}},
	{"glucose_postprandial", []string{"glucose postprandial", "ppbs", "post prandial glucose"}},
	{"systolicbp", []string{"systolic", "systolic bp", "sbp"}},
	{"diastolicbp", []string{"diastolic", "diastolic bp", "dbp"}},
	{"bodytemp", []string{"body temperature", "temperature", "temp"}},
	{"heartrate", []string{"heart rate", "pulse", "hr"}},
	{"bmi", []string{"bmi", "body mass index"}},
	{"testosterone", []string{"testosterone", "testosterone level"}},
	{"afc", []string{"antral follicle count", "afc"}},
	{"age", []string{"age"}},
}

// Canonical keys read by the prediction and condition stages.
const (
	KeyHemoglobin          = "hemoglobin"
	KeyTSH                 = "tsh"
	KeyT3                  = "t3"
	KeyT4                  = "t4"
	KeyGlucoseFasting      = "glucose_fasting"
	KeyGlucosePostprandial = "glucose_postprandial"
	KeyGlucose             = "glucose"
	KeyBloodSugar          = "bs"
	KeySystolicBP          = "systolicbp"
	KeyDiastolicBP         = "diastolicbp"
	KeyBodyTemp            = "bodytemp"
	KeyHeartRate           = "heartrate"
	KeyBMI                 = "bmi"
	KeyTestosterone        = "testosterone"
	KeyAFC                 = "afc"
	KeyAge                 = "age"
)
