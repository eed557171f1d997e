package schema

// telcoRenames is the request vocabulary of the Telco churn model, listed in
// the column order the model was trained with.
var telcoRenames = []Rename{
	{"Gender", "Gender"},
	{"Senior_Citizen", "Senior Citizen"},
	{"Partner", "Partner"},
	{"Dependents", "Dependents"},
	{"Tenure_Months", "Tenure Months"},
	{"Phone_Service", "Phone Service"},
	{"Paperless_Billing", "Paperless Billing"},
	{"Monthly_Charges", "Monthly Charges"},
	{"Total_Charges", "Total Charges"},
	{"CLTV", "CLTV"},

	{"Multiple_Lines_No", "Multiple Lines_No"},
	{"Multiple_Lines_No_phone_service", "Multiple Lines_No phone service"},
	{"Multiple_Lines_Yes", "Multiple Lines_Yes"},

	{"Internet_Service_DSL", "Internet Service_DSL"},
	{"Internet_Service_Fiber_optic", "Internet Service_Fiber optic"},
	{"Internet_Service_No", "Internet Service_No"},

	{"Online_Security_No", "Online Security_No"},
	{"Online_Security_No_internet_service", "Online Security_No internet service"},
	{"Online_Security_Yes", "Online Security_Yes"},

	{"Online_Backup_No", "Online Backup_No"},
	{"Online_Backup_No_internet_service", "Online Backup_No internet service"},
	{"Online_Backup_Yes", "Online Backup_Yes"},

	{"Device_Protection_No", "Device Protection_No"},
	{"Device_Protection_No_internet_service", "Device Protection_No internet service"},
	{"Device_Protection_Yes", "Device Protection_Yes"},

	{"Tech_Support_No", "Tech Support_No"},
	{"Tech_Support_No_internet_service", "Tech Support_No internet service"},
	{"Tech_Support_Yes", "Tech Support_Yes"},

	{"Streaming_TV_No", "Streaming TV_No"},
	{"Streaming_TV_No_internet_service", "Streaming TV_No internet service"},
	{"Streaming_TV_Yes", "Streaming TV_Yes"},

	{"Streaming_Movies_No", "Streaming Movies_No"},
	{"Streaming_Movies_No_internet_service", "Streaming Movies_No internet service"},
	{"Streaming_Movies_Yes", "Streaming Movies_Yes"},

	{"Contract_Month_to_month", "Contract_Month-to-month"},
	{"Contract_One_year", "Contract_One year"},
	{"Contract_Two_year", "Contract_Two year"},

	{"Payment_Method_Bank_transfer_automatic", "Payment Method_Bank transfer (automatic)"},
	{"Payment_Method_Credit_card_automatic", "Payment Method_Credit card (automatic)"},
	{"Payment_Method_Electronic_check", "Payment Method_Electronic check"},
	{"Payment_Method_Mailed_check", "Payment Method_Mailed check"},
}

// TelcoTable returns the rename table for the Telco churn model.
func TelcoTable() *Table {
	t, err := NewTable(telcoRenames)
	if err != nil {
		panic("schema: invalid telco rename table: " + err.Error())
	}
	return t
}

// TelcoFeatureNames returns the canonical feature names of the Telco churn
// model in trained column order.
func TelcoFeatureNames() []string {
	names := make([]string, len(telcoRenames))
	for i, r := range telcoRenames {
		names[i] = r.Canonical
	}
	return names
}

// TableByName resolves a configured table name. "identity" builds a table
// from the model's own feature names.
func TableByName(name string, featureNames []string) (*Table, error) {
	switch name {
	case "telco", "":
		return TelcoTable(), nil
	case "identity":
		return IdentityTable(featureNames)
	default:
		return nil, &UnknownTableError{Name: name}
	}
}

type UnknownTableError struct {
	Name string
}

func (e *UnknownTableError) Error() string {
	return "unknown rename table " + `"` + e.Name + `"`
}
