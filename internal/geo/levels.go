// 包 geo：地理聚合层级的声明式定义，作为全仓唯一的层级与表名来源
// 背景：聚合重建按层级驱动；层级名、阶梯表键列、目标聚合表三元组在此集中登记，
// SQL 拼装只允许引用这张白名单，层级与表名不从外部输入进入查询文本
package geo

// Level：一个地理聚合层级
// 约束：KeyColumn 是 _pl_parcel_geo 中的列名，AggTable 是对应聚合表名；
// 两者均为编译期常量，不接受运行时扩展
type Level struct {
	Name      string
	KeyColumn string
	AggTable  string
}

// levels：受支持的层级，处理顺序即此顺序（仅影响日志与输出顺序，不影响正确性）
var levels = []Level{
	{Name: "tax_block", KeyColumn: "tax_block_id", AggTable: "_pl_agg_tax_block"},
	{Name: "tract", KeyColumn: "tract_id", AggTable: "_pl_agg_tract"},
	{Name: "zcta", KeyColumn: "zcta_id", AggTable: "_pl_agg_zcta"},
	{Name: "school_district", KeyColumn: "school_district_id", AggTable: "_pl_agg_school_district"},
	{Name: "neighborhood", KeyColumn: "neighborhood_id", AggTable: "_pl_agg_neighborhood"},
}

// Levels：返回全部层级的副本，调用方可安全重排
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// ByName：按层级名查找
func ByName(name string) (Level, bool) {
	for _, l := range levels {
		if l.Name == name {
			return l, true
		}
	}
	return Level{}, false
}

// Valid：校验一个 Level 是否逐字段命中白名单
// 背景：store 层在拼接表名/列名前必须通过此校验，防止非受控标识符进入 SQL
func Valid(l Level) bool {
	for _, w := range levels {
		if l == w {
			return true
		}
	}
	return false
}
