/*
包 registry 提供设备授权与区域配置查询，基于 GORM。

Authorize 按固定顺序校验设备描述：序列号、试用设备、规则集、注册记录、
认证号。试用序列号 TestSerialNumber 不查表，调用者的 user id 决定组织
名 Trial_<userId>。ConfigFor 按区域读取配置 JSON；RegionForNRA 把监管
机构映射为区域字符串。
*/
package registry
