// 包 version：构建身份信息，供各工具的完成横幅引用
package version

// 通过 -ldflags "-X ...version.Version=... -X ...version.Commit=..." 注入
var (
	Version = "dev"
	Commit  = "unknown"
)

func String() string {
	return Version + " (" + Commit + ")"
}
