package telemetry

// Condition names indexed by the host's weather_code.
var conditions = [...]string{
	"晴",
	"多云",
	"阴",
	"小雨",
	"中雨",
	"大雨",
	"雷阵雨",
	"小雪",
	"中雪",
	"大雪",
	"雨夹雪",
	"雾",
	"霾",
	"沙尘",
	"晴转多云",
	"多云转阴",
	"阴转雨",
}

// City names indexed by the host's city_code.
var cities = [...]string{
	"杭州",
	"上海",
	"北京",
	"广州",
	"深圳",
	"成都",
	"重庆",
	"武汉",
	"西安",
	"南京",
	"天津",
	"苏州",
	"青岛",
	"厦门",
	"长沙",
}

// ConditionName maps a weather code to its label. Unknown codes read as
// clear sky.
func ConditionName(code int16) string {
	if code < 0 || int(code) >= len(conditions) {
		return conditions[0]
	}
	return conditions[code]
}

// CityName maps a city code to its label. Unknown codes read as the home
// city.
func CityName(code int16) string {
	if code < 0 || int(code) >= len(cities) {
		return cities[0]
	}
	return cities[code]
}
