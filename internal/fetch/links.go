// 包 fetch：政府开放数据门户的导出文件抓取
// 背景：各评估区的导出页是普通 HTML 列表页，链接格式不统一；这里只认
// 文件后缀与常见的 format 查询参数，解析失败的链接静默跳过
package fetch

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractExportLinks：从门户页面提取候选导出链接并按页面地址解析为绝对 URL
// 约束：只收 .csv/.zip 结尾或带 format=csv 类参数的锚点；去重保序
func ExtractExportLinks(base *url.URL, r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(u)
		if !isExportLink(abs) {
			return
		}
		s := abs.String()
		if seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	})
	return out, nil
}

func isExportLink(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	if strings.HasSuffix(p, ".csv") || strings.HasSuffix(p, ".zip") {
		return true
	}
	q := u.Query()
	for _, key := range []string{"format", "outputFormat", "f"} {
		v := strings.ToLower(q.Get(key))
		if v == "csv" || v == "zip" {
			return true
		}
	}
	return false
}
