package forecast

// Meteoblue daily pictocodes.
var conditionDescriptions = map[string]string{
	"1":  "Ensolarado, céu sem nuvens",
	"2":  "Ensolarado com poucas nuvens",
	"3":  "Parcialmente nublado",
	"4":  "Encoberto",
	"5":  "Nevoeiro",
	"6":  "Encoberto com chuva",
	"7":  "Variável com pancadas de chuva",
	"8":  "Pancadas de chuva, trovoadas prováveis",
	"9":  "Encoberto com neve",
	"10": "Variável com pancadas de neve",
	"11": "Predominantemente nublado com neve e chuva",
	"12": "Encoberto com chuva fraca",
	"13": "Encoberto com neve fraca",
	"14": "Predominantemente nublado com chuva",
	"15": "Predominantemente nublado com neve",
	"16": "Predominantemente nublado com chuva fraca",
	"17": "Predominantemente nublado com neve fraca",
}

// DescribeCondition returns the description of a pictocode, or the code itself
// when it is unknown.
func DescribeCondition(code string) string {
	if d, ok := conditionDescriptions[code]; ok {
		return d
	}
	return code
}
