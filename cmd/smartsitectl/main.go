// smartsitectl — служебный CLI SmartSite: просмотр и запись SOT-дерева,
// миграции БД, регистрация announcement-модулей, сводка admin-панели.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
